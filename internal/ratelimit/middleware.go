package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/logger"
)

// Recorder counts rejected requests per budget.
type Recorder interface {
	RateLimited(budget string)
}

type noopRecorder struct{}

func (noopRecorder) RateLimited(string) {}

// Guard builds per-budget middleware over one Limiter.
type Guard struct {
	limiter  Limiter
	log      *logger.Logger
	recorder Recorder
}

func NewGuard(limiter Limiter, log *logger.Logger, recorder Recorder) *Guard {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Guard{
		limiter:  limiter,
		log:      log.WithComponent("ratelimit"),
		recorder: recorder,
	}
}

// Limit rejects requests over budget b with a 429 problem document before
// they reach next. Clients are keyed by IP. If the limiter itself fails the
// request is let through and the failure is logged.
func (g *Guard) Limit(b Budget) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := logger.ClientIP(r)

			d, err := g.limiter.Allow(r.Context(), b, ip)
			if err != nil {
				g.log.Error(r.Context(), "rate limiter unavailable", err, map[string]any{"budget": b.Name})
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				g.recorder.RateLimited(b.Name)
				g.log.Warn(r.Context(), "rate limit exceeded", map[string]any{
					"budget":    b.Name,
					"remote_ip": ip,
				})
				writeThrottled(w, r, d.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RetryAfterSeconds rounds d up to whole seconds, at least 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func writeThrottled(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	secs := RetryAfterSeconds(retryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(secs))

	detail := fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs)
	apperrors.WriteProblem(w, apperrors.GetRequestID(r.Context()),
		apperrors.NewProblem(http.StatusTooManyRequests, detail, r.URL.Path))
}
