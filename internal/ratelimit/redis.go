package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// admitScript trims the key's sorted set to the window, counts, and adds the
// new stamp in one round trip so concurrent callers on the same key cannot
// both pass the check.
var admitScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

// RedisGuard shares sliding windows between service instances. Keys expire
// with the window, so idle identities cost nothing.
type RedisGuard struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisGuard(client *redis.Client, prefix string, limit int) *RedisGuard {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisGuard{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: DefaultWindow,
		now:    time.Now,
	}
}

func (g *RedisGuard) Limit() int { return g.limit }

func (g *RedisGuard) Admit(ctx context.Context, key string) error {
	now := g.now().UnixMilli()
	window := g.window.Milliseconds()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	admitted, err := admitScript.Run(ctx, g.client,
		[]string{g.prefix + key},
		strconv.FormatInt(now, 10),
		"("+strconv.FormatInt(now-window, 10),
		g.limit,
		member,
		strconv.FormatInt(window, 10),
	).Int()
	if err != nil {
		return fmt.Errorf("rate window %s: %w", key, err)
	}
	if admitted == 0 {
		return ErrRateLimitExceeded
	}
	return nil
}

// Ping reports whether the backing Redis is reachable.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
