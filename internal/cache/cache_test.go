package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskvault/backend/internal/logger"
)

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "memcached://localhost:11211", logger.New(io.Discard, logger.LevelError, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse url")
}

func TestPing_Unreachable(t *testing.T) {
	c := NewFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	t.Cleanup(func() { _ = c.Close() })

	assert.Error(t, c.Ping(context.Background()))
	assert.NotNil(t, c.Client())
}
