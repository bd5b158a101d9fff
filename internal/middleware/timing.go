package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/taskvault/backend/internal/logger"
)

// SlowRequestThreshold is the duration above which a request is logged as slow.
const SlowRequestThreshold = 500 * time.Millisecond

// Timing returns a middleware that adds a Server-Timing header covering the
// handler's work up to the first byte, and warns about slow requests.
func Timing(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("timing")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &timingResponseWriter{ResponseWriter: w, start: time.Now(), statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(wrapped.start)
			if duration > SlowRequestThreshold {
				log.Warn(r.Context(), "slow request", map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      wrapped.statusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}
		})
	}
}

// timingResponseWriter stamps the header just before it is sent, since
// headers set after WriteHeader are ignored.
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.statusCode = code
	w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *timingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return "app;dur=" + strconv.FormatFloat(ms, 'f', 2, 64)
}
