package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", ValidationError("bad input"), http.StatusUnprocessableEntity, CodeValidationError},
		{"conflict", EmailExists(), http.StatusConflict, CodeEmailExists},
		{"credentials", InvalidCredentials(), http.StatusUnauthorized, CodeInvalidCredentials},
		{"store unavailable", StoreUnavailable(), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"wrapped app error", fmt.Errorf("register: %w", NotFound("todo")), http.StatusNotFound, CodeNotFound},
		{"plain error", stderrors.New("pq: connection refused to 10.0.0.3"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, "req-1", tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			assert.NotContains(t, resp.Error.Message, "10.0.0.3")
		})
	}
}

func TestWriteProblem(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("Retry-After", "60")
	WriteProblem(w, "", NewProblem(http.StatusTooManyRequests, "Rate limit exceeded: 5 per 15m0s", "/api/v1/auth/login"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ProblemContentType, w.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "about:blank", p.Type)
	assert.Equal(t, "Too Many Requests", p.Title)
	assert.Equal(t, 429, p.Status)
	assert.Equal(t, "/api/v1/auth/login", p.Instance)
}

func TestHandleFunc_ReportsOnlyServerErrors(t *testing.T) {
	var reported []error
	report := func(_ *http.Request, err error) { reported = append(reported, err) }

	client := HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return Unauthorized("Not authenticated")
	}, report)
	server := HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return stderrors.New("boom")
	}, report)

	w := httptest.NewRecorder()
	client(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, reported)

	w = httptest.NewRecorder()
	server(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, reported, 1)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc", seen)
}

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return StoreUnavailable()
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
			calls++
			return ValidationError("nope")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
			calls++
			return MarkRetryable(stderrors.New("dial tcp: connection refused"))
		})
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 4, calls)
	})
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	v, err := RetryWithResult(context.Background(), fastRetry(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, StoreUnavailable()
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
