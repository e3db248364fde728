package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript refills and consumes atomically. Times are unix milliseconds.
// Returns {remaining, next refill}.
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate     = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now      = tonumber(ARGV[4])
local n        = tonumber(ARGV[5])

local state  = redis.call('HMGET', KEYS[1], 'tokens', 'refill')
local tokens = tonumber(state[1])
local last   = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

if now > last then
  local intervals = math.min(math.floor((now - last) / interval), math.floor(capacity / rate) + 1)
  if intervals > 0 then
    tokens = math.min(tokens + intervals * rate, capacity)
    last = last + intervals * interval
  end
end

local remaining = tokens - n
if remaining >= 0 then
  tokens = remaining
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refill', last)
redis.call('PEXPIRE', KEYS[1], (math.floor(capacity / rate) + 1) * interval)
return {remaining, last + interval}
`)

type scripter interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore shares buckets across processes.
type RedisStore struct {
	client scripter
	prefix string
	now    func() time.Time
}

// NewRedisStore namespaces keys with prefix (default "ratelimit:").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	vals, err := consumeScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity, cfg.RefillRate, cfg.RefillInterval.Milliseconds(), s.now().UnixMilli(), tokens,
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}
	return int(vals[0]), time.UnixMilli(vals[1]), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
