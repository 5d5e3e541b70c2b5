package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/daoledger/daoledger/internal/config"
	"github.com/daoledger/daoledger/internal/notification"
)

// NewRedisClient configures a Redis client from REDIS_URL and the pool
// settings, then verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.RedisPoolSize > 0 {
		opt.PoolSize = cfg.RedisPoolSize
	}
	if cfg.RedisTimeout > 0 {
		opt.DialTimeout = cfg.RedisTimeout
		opt.ReadTimeout = cfg.RedisTimeout
		opt.WriteTimeout = cfg.RedisTimeout
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// EventPublisher publishes committed events on the configured channel.
func EventPublisher(client *redis.Client, cfg config.Config) *notification.RedisNotifier {
	return notification.NewRedisNotifier(client, cfg.EventsChannel)
}
