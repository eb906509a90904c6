package app

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/guttosm/stockmeter/config"
)

// InitRedis connects to the quota counter store and pings it.
func InitRedis(cfg config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// redisOpener is overridden in tests to point at miniredis.
var redisOpener = InitRedis
