package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript implements the sliding window over a sorted set of hit
// timestamps (milliseconds). Runs atomically server-side so concurrent
// instances agree on the count.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = (tonumber(oldest[2]) + window) - now
  end
  return {0, retry}
end

local seq = redis.call('INCR', key .. ':seq')
redis.call('PEXPIRE', key .. ':seq', window)
redis.call('ZADD', key, now, now .. '-' .. seq)
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisStore keeps sliding-window state in Redis so the limit holds across
// scaled instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced under
// prefix to keep limiter state apart from other cache entries.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now().UnixMilli()
	res, err := allowScript.Run(ctx, s.client,
		[]string{fmt.Sprintf("%s:%s", s.prefix, key)},
		now, window.Milliseconds(), max,
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected script reply length %d", len(res))
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}
