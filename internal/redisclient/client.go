// Package redisclient provides the Redis client and the cross-instance
// coordination primitives built on it.
package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"deploy-orchestrator-go/internal/config"
)

// Client wraps redis.Client with application-specific configuration
type Client struct {
	client *redis.Client
}

// NewClient creates a new Redis client with connection pool configuration
func NewClient(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = cfg.RedisPoolSize
	opt.MinIdleConns = cfg.RedisMinIdleConn
	opt.MaxRetries = cfg.RedisMaxRetries
	opt.DialTimeout = cfg.RedisDialTimeout

	return &Client{client: redis.NewClient(opt)}, nil
}

// NewFromRedis wraps an existing client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

// Ping performs a health check on the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// GetRedis returns the underlying redis.Client for direct access
func (c *Client) GetRedis() *redis.Client {
	return c.client
}
