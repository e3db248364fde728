package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every process using the same Redis.
// The lock expires after ttl so a crashed holder cannot block an account forever.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockRetryInterval sets how often a waiting caller polls the lock.
func WithLockRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithKeyPrefix namespaces lock keys.
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a distributed Locker.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, opts ...RedisLockerOption) *RedisLocker {
	if client == nil {
		panic("billing: redis client is required")
	}
	l := &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  100 * time.Millisecond,
	}
	if l.ttl <= 0 {
		l.ttl = time.Minute
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements Locker. It polls until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Join(ErrAccountLocked, err)
		}
		if ok {
			return func() {
				// Release even if the caller's context is already gone.
				_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrAccountLocked, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RedisNonceStore is a NonceStore backed by SET NX with expiry.
type RedisNonceStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisNonceStore creates a NonceStore remembering nonces for ttl.
func NewRedisNonceStore(client redis.UniversalClient, ttl time.Duration) *RedisNonceStore {
	if client == nil {
		panic("billing: redis client is required")
	}
	return &RedisNonceStore{client: client, ttl: ttl, prefix: "billing:nonce:"}
}

// Consume implements NonceStore.
func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+nonce, 1, s.ttl).Result()
}
