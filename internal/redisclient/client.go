// Package redisclient wraps go-redis for the recent-spot list.
package redisclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/config"
)

// Client holds the Redis client instance.
type Client struct {
	*redis.Client
}

// NewClient returns a connected client, or nil when Redis is disabled.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("redis host must be specified when Redis is enabled")
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	options := &redis.Options{
		Addr:         addr,
		Username:     cfg.User,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	}
	if cfg.UseTLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}

	rdb := NewRedisClient(options)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Client{rdb}, nil
}

// NewRedisClient is a variable wrapper around redis.NewClient so tests can override it.
var NewRedisClient = func(opt *redis.Options) *redis.Client {
	return redis.NewClient(opt)
}

// PushCapped prepends value to the list at key, keeps the newest max entries
// and refreshes the key's TTL, all in one round trip.
func (c *Client) PushCapped(ctx context.Context, key string, max int, ttl time.Duration, values ...interface{}) error {
	if len(values) == 0 {
		return nil
	}
	_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, values...)
		if max > 0 {
			p.LTrim(ctx, key, 0, int64(max-1))
		}
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// Recent returns up to n newest entries of the list at key.
func (c *Client) Recent(ctx context.Context, key string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return c.LRange(ctx, key, 0, int64(n-1)).Result()
}
