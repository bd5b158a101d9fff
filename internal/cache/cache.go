// Package cache connects to Redis.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/logger"
)

type Cache struct {
	client *redis.Client
}

// New connects to the Redis at url (redis://[user:pass@]host:port/db),
// retrying the first ping with backoff.
func New(ctx context.Context, url string, log *logger.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	err = apperrors.Retry(ctx, apperrors.ConnectRetryConfig(), func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return apperrors.MarkRetryable(err)
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", opts.Addr, err)
	}

	log.Info(ctx, "connected to redis", map[string]any{"addr": opts.Addr, "db": opts.DB})
	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
