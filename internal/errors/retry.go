package errors

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// JitterPercent randomizes each wait by +/- this percentage.
	JitterPercent uint64
}

// DefaultRetryConfig returns a sensible default configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		JitterPercent:  25,
	}
}

// ConnectRetryConfig is used when dialing Postgres and Redis at startup,
// where the dependency may still be coming up.
func ConnectRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterPercent:  25,
	}
}

func (c *RetryConfig) backoff() retry.Backoff {
	b := retry.NewExponential(c.InitialBackoff)
	b = retry.WithCappedDuration(c.MaxBackoff, b)
	if c.JitterPercent > 0 {
		b = retry.WithJitterPercent(c.JitterPercent, b)
	}
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done.
func Retry(ctx context.Context, cfg *RetryConfig, fn RetryableFunc) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	return retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// RetryWithResult executes a function that returns a value with retry logic
func RetryWithResult[T any](ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// isRetryableError determines if an error should be retried
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, context.Canceled) {
		return false
	}

	if IsRetryable(err) {
		return true
	}

	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// MarkRetryable wraps err so Retry treats it as transient.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return StoreUnavailable().WithCause(err)
}
