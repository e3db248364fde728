// Package ratelimiter implements a token bucket over pluggable stores.
package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config describes one bucket. Env tags let callers load it with pkg/config.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Store keeps bucket state. ConsumeTokens takes tokens only when enough are
// left; a negative remaining value means the request was denied.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

// Result of one check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (r *Result) Allowed() bool { return r.Remaining >= 0 }

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Limiter is what HTTP middleware depends on.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Bucket implements Limiter.
type Bucket struct {
	store Store
	cfg   Config
}

func NewBucket(store Store, cfg Config) (*Bucket, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, cfg: cfg}, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	remaining, resetAt, err := b.store.ConsumeTokens(ctx, key, n, b.cfg)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: b.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}

// refill returns the tokens after whole intervals since last, and the new refill mark.
func refill(tokens int, last, now time.Time, cfg Config) (int, time.Time) {
	if now.Before(last) {
		return tokens, last
	}
	// Capped so huge gaps cannot overflow.
	maxIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	n := min(int64(now.Sub(last)/cfg.RefillInterval), maxIntervals)
	if n <= 0 {
		return tokens, last
	}
	return min(tokens+int(n)*cfg.RefillRate, cfg.Capacity), last.Add(time.Duration(n) * cfg.RefillInterval)
}
