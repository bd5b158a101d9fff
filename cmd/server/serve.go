package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/taskvault/backend/internal/api"
	"github.com/taskvault/backend/internal/auth"
	"github.com/taskvault/backend/internal/cache"
	"github.com/taskvault/backend/internal/config"
	"github.com/taskvault/backend/internal/db"
	"github.com/taskvault/backend/internal/health"
	"github.com/taskvault/backend/internal/logger"
	"github.com/taskvault/backend/internal/metrics"
	"github.com/taskvault/backend/internal/ratelimit"
	"github.com/taskvault/backend/internal/todo"
)

type serveOptions struct {
	migrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "apply pending migrations before serving (postgres store only)")

	return cmd
}

// app holds the assembled server and everything that must be released on
// shutdown.
type app struct {
	handler     http.Handler
	authService *auth.Service
	metrics     *metrics.Metrics
	closers     []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp connects the configured backends and wires the router.
func buildApp(ctx context.Context, cfg config.Config, log *logger.Logger, opts *serveOptions) (_ *app, err error) {
	a := &app{metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var (
		users    auth.UserStore
		sessions auth.SessionStore
		todos    todo.Store
		checker  = &health.CheckerConfig{Version: cfg.AppVersion, Timeout: cfg.StoreTimeout}
	)

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if opts.migrate {
			if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
			}
			log.Info(ctx, "migrations applied")
		}

		database, err := db.Open(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		a.closers = append(a.closers, database.Close)
		log.Info(ctx, "connected to database")

		users = db.NewUserRepository(database)
		sessions = db.NewSessionRepository(database)
		todos = db.NewTodoRepository(database)
		checker.DB = database
	default:
		log.Warn(ctx, "using in-memory store; data is lost on restart")
		users = auth.NewMemoryUserStore()
		sessions = auth.NewMemorySessionStore()
		todos = todo.NewMemoryStore()
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendRedis:
		c, err := cache.New(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
		}
		a.closers = append(a.closers, c.Close)
		limiter = ratelimit.NewRedisLimiter(c.Client())
		checker.Redis = c
	default:
		mem := ratelimit.NewMemoryLimiter(time.Minute)
		a.closers = append(a.closers, func() error { mem.Stop(); return nil })
		limiter = mem
	}

	bucket := ratelimit.NewTokenBucket(time.Minute)
	a.closers = append(a.closers, func() error { bucket.Stop(); return nil })

	codec, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	a.authService, err = auth.NewService(users, sessions, auth.NewBcryptHasher(cfg.BcryptCost), codec, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	a.handler = api.NewRouter(&api.Deps{
		Config:         cfg,
		Log:            log,
		Metrics:        a.metrics,
		Health:         health.NewHandler(health.NewChecker(checker)),
		AuthService:    a.authService,
		TodoService:    todo.NewService(todos),
		Limiter:        limiter,
		GeneralLimiter: bucket,
	})

	return a, nil
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log, opts)
	if err != nil {
		log.Error(ctx, "startup failed", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error(context.Background(), "error releasing resources", err)
		}
	}()

	go runJanitor(ctx, a.authService, a.metrics, cfg.SessionPurgeInterval, cfg.RefreshTTL(), log)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info(ctx, "server listening", map[string]any{
			"addr":       cfg.ServerAddr,
			"store":      cfg.StoreDriver,
			"rate_limit": cfg.RateLimitBackend,
			"version":    cfg.AppVersion,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Error(ctx, "server failed", err)
			return err
		}
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// runJanitor purges expired and revoked sessions every interval until ctx is
// done. A zero interval disables it. Sessions are kept for retention after
// they expire or are revoked, so rotated tokens stay on record that long.
func runJanitor(ctx context.Context, svc *auth.Service, m *metrics.Metrics, interval, retention time.Duration, log *logger.Logger) {
	if interval <= 0 {
		return
	}
	log = log.WithComponent("janitor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeSessions(ctx, svc, m, retention, log)
		}
	}
}

func purgeSessions(ctx context.Context, svc *auth.Service, m *metrics.Metrics, retention time.Duration, log *logger.Logger) {
	n, err := svc.PurgeExpiredSessions(ctx, time.Now().Add(-retention))
	if err != nil {
		log.Error(ctx, "session purge failed", err)
		return
	}
	m.SessionsPurged(n)
	if n > 0 {
		log.Info(ctx, "purged sessions", map[string]any{"count": n})
	}
}
