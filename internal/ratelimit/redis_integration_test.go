//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := startRedis(t)
	l := NewRedisLimiter(client)
	ctx := context.Background()
	b := Budget{Name: "login", Limit: 3, Window: 2 * time.Second}

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, b, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := l.Allow(ctx, b, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 2*time.Second)

	d, err = l.Allow(ctx, b, "203.0.113.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	ttl, err := client.PTTL(ctx, "ratelimit:login:203.0.113.7").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.Eventually(t, func() bool {
		d, err := l.Allow(ctx, b, "203.0.113.7")
		return err == nil && d.Allowed
	}, 5*time.Second, 250*time.Millisecond)
}
