package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/taskvault/backend/internal/errors"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_BasicLogging(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "auth")

	log.Info(context.Background(), "test message", map[string]any{"key": "value"})

	entry := decode(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "auth", entry["component"])
	assert.Equal(t, "value", entry["key"])
}

func TestLogger_RequestIDPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "")

	ctx := apperrors.WithRequestID(context.Background(), "test-request-id")
	log.Info(ctx, "test message")

	assert.Equal(t, "test-request-id", decode(t, &buf)["request_id"])
}

func TestLogger_LogLevels(t *testing.T) {
	tests := []struct {
		minLevel     Level
		logLevel     string
		shouldOutput bool
	}{
		{LevelInfo, "debug", false},
		{LevelInfo, "info", true},
		{LevelWarn, "info", false},
		{LevelWarn, "warn", true},
		{LevelError, "warn", false},
		{LevelError, "error", true},
	}

	for _, tt := range tests {
		t.Run(tt.minLevel.String()+"/"+tt.logLevel, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tt.minLevel, "")
			ctx := context.Background()

			switch tt.logLevel {
			case "debug":
				log.Debug(ctx, "m")
			case "info":
				log.Info(ctx, "m")
			case "warn":
				log.Warn(ctx, "m")
			case "error":
				log.Error(ctx, "m", errors.New("e"))
			}

			assert.Equal(t, tt.shouldOutput, buf.Len() > 0)
		})
	}
}

func TestLogger_ErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "")

	err := oops.In("db").Code("QUERY_FAILED").With("operation", "insert session").
		Wrap(apperrors.StoreUnavailable())
	log.Error(context.Background(), "refresh failed", err)

	entry := decode(t, &buf)
	assert.Equal(t, apperrors.CodeStoreUnavailable, entry["error_code"])
	assert.Equal(t, "server", entry["error_category"])
	assert.Equal(t, "QUERY_FAILED", entry["oops_code"])
	assert.Equal(t, "db", entry["error_domain"])
	require.IsType(t, map[string]any{}, entry["error_context"])
	assert.Equal(t, "insert session", entry["error_context"].(map[string]any)["operation"])
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "http").WithComponent("ratelimit")

	log.Warn(context.Background(), "throttled")

	entry := decode(t, &buf)
	assert.Equal(t, "ratelimit", entry["component"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
