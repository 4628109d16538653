// Package redis connects to the optional Redis used for the detection scan
// lock.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nexops/internal/platform/config"
)

// Client is a pinged go-redis client.
type Client struct {
	*redis.Client
}

// New dials cfg.URL. An empty URL means Redis is not configured and yields a
// nil client.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	applyPool(opts, cfg)

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: rdb}, nil
}

// applyPool overrides URL options with any non-zero config values.
func applyPool(opts *redis.Options, cfg config.RedisConfig) {
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(&opts.PoolSize, cfg.PoolSize)
	setInt(&opts.MinIdleConns, cfg.MinIdleConns)
	for dst, v := range map[*time.Duration]time.Duration{
		&opts.DialTimeout:  cfg.DialTimeout,
		&opts.ReadTimeout:  cfg.ReadTimeout,
		&opts.WriteTimeout: cfg.WriteTimeout,
	} {
		if v > 0 {
			*dst = v
		}
	}
}

func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health: %w", err)
	}
	return nil
}
