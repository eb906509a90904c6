package quota

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// RedisCounter implements Counter with Redis INCR, TTL and EXPIRE.
type RedisCounter struct {
	client goredis.Cmdable
}

// NewRedisCounter wraps a go-redis client (or pipeline-capable Cmdable).
func NewRedisCounter(client goredis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr runs INCR and TTL in one MULTI/EXEC round trip. Redis reports -1 for
// a key without expiry, which go-redis returns as a negative duration.
func (r *RedisCounter) Incr(ctx context.Context, key string) (int64, time.Duration, error) {
	var (
		incr *goredis.IntCmd
		ttl  *goredis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

func (r *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}
