// Package api assembles the HTTP surface: global middleware, operational
// endpoints and the versioned API routes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskvault/backend/internal/auth"
	"github.com/taskvault/backend/internal/config"
	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/health"
	"github.com/taskvault/backend/internal/logger"
	"github.com/taskvault/backend/internal/metrics"
	"github.com/taskvault/backend/internal/middleware"
	"github.com/taskvault/backend/internal/ratelimit"
	"github.com/taskvault/backend/internal/todo"
)

// Deps groups everything NewRouter needs. Lifetimes (limiter cleanup loops,
// store connections) stay with the caller.
type Deps struct {
	Config  config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Health  *health.Handler

	AuthService *auth.Service
	TodoService *todo.Service

	// Limiter enforces the login and registration budgets.
	Limiter ratelimit.Limiter
	// GeneralLimiter enforces the per-minute budget over the /todos routes.
	GeneralLimiter ratelimit.Limiter
}

// Budgets derives the rate limit budgets from configuration.
func Budgets(cfg config.Config) (general, login, register ratelimit.Budget) {
	general = ratelimit.Budget{Name: "api", Limit: cfg.RateLimitPerMinute, Window: time.Minute}
	login = ratelimit.Budget{Name: "login", Limit: cfg.LoginRateLimit, Window: cfg.LoginWindow()}
	register = ratelimit.Budget{Name: "register", Limit: cfg.RegisterRateLimit, Window: cfg.RegisterWindow()}
	return general, login, register
}

// NewRouter wires the middleware stack and every route.
//
// Global middleware order:
//
//	request id -> recovery -> logging -> metrics -> timing -> CORS -> security headers
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(apperrors.RequestIDMiddleware)
	r.Use(logger.RecoveryMiddleware(d.Log))
	r.Use(logger.Middleware(d.Log))
	r.Use(metrics.Middleware(d.Metrics))
	r.Use(middleware.Timing(d.Log))
	r.Use(middleware.CORS(d.Config.AllowedOrigins()))
	r.Use(middleware.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.NotFound("Resource"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, apperrors.GetRequestID(r.Context()),
			apperrors.New("METHOD_NOT_ALLOWED", "method not allowed", apperrors.CategoryClient, http.StatusMethodNotAllowed))
	})

	r.Get("/health", d.Health.LivenessHandler)
	r.Get("/health/live", d.Health.LivenessHandler)
	r.Get("/health/db", d.Health.DatabaseHandler)
	r.Get("/health/ready", d.Health.ReadinessHandler)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	report := reporter(d.Log)
	general, login, register := Budgets(d.Config)
	guard := ratelimit.NewGuard(d.Limiter, d.Log, d.Metrics)
	generalGuard := ratelimit.NewGuard(d.GeneralLimiter, d.Log, d.Metrics)
	bearer := auth.Middleware(d.AuthService)

	authHandlers := auth.NewHandlers(d.AuthService, d.Metrics, d.Log)
	todoHandlers := todo.NewHandlers(d.TodoService, d.Log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Gzip)

		r.Route("/auth", func(r chi.Router) {
			r.With(guard.Limit(register)).Post("/register", apperrors.HandleFunc(authHandlers.Register, report))
			r.With(guard.Limit(login)).Post("/login", apperrors.HandleFunc(authHandlers.Login, report))
			r.Post("/refresh", apperrors.HandleFunc(authHandlers.Refresh, report))

			r.Group(func(r chi.Router) {
				r.Use(bearer)
				r.Post("/logout", apperrors.HandleFunc(authHandlers.Logout, report))
				r.Get("/me", apperrors.HandleFunc(authHandlers.Me, report))
			})
		})

		// Only todo traffic draws on the general budget, so login and
		// register throttling never spills onto the rest of the API.
		r.Route("/todos", func(r chi.Router) {
			r.Use(generalGuard.Limit(general))
			r.Use(bearer)
			r.Use(middleware.ETag)
			todoHandlers.Routes(r, report)
		})
	})

	return r
}

func reporter(log *logger.Logger) apperrors.Reporter {
	log = log.WithComponent("api")
	return func(r *http.Request, err error) {
		log.Error(r.Context(), "request failed", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
}
