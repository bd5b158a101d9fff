// Package db implements the Postgres-backed stores.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/samber/oops"

	apperrors "github.com/taskvault/backend/internal/errors"
	"github.com/taskvault/backend/internal/models"
)

// DefaultTimeout bounds a store call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

type DB struct {
	*sql.DB
	timeout time.Duration
}

// Open connects to Postgres, retrying the initial ping with backoff.
func Open(ctx context.Context, databaseURL string, timeout time.Duration) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	d := New(sqlDB, timeout)
	err = apperrors.Retry(ctx, apperrors.ConnectRetryConfig(), func(ctx context.Context) error {
		if err := d.Ping(ctx); err != nil {
			return apperrors.MarkRetryable(err)
		}
		return nil
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return d, nil
}

// New wraps an existing pool.
func New(sqlDB *sql.DB, timeout time.Duration) *DB {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DB{DB: sqlDB, timeout: timeout}
}

// Ping checks connectivity within the store timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()
	return db.PingContext(ctx)
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.timeout)
}

// WithTx runs fn in a transaction, committing if fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// withUserScope sets app.current_user_id for the rest of the transaction so
// the row level security policies apply.
func withUserScope(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `SELECT set_config('app.current_user_id', $1, true)`, userID.String())
	return err
}

// storeErr wraps a driver error with the failed operation. Timeouts and lost
// connections also match models.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	b := oops.In("db").With("operation", op)
	if isUnavailable(err) {
		return b.Code("STORE_UNAVAILABLE").Wrap(fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err))
	}
	return b.Code("QUERY_FAILED").Wrap(err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return pgerrcode.IsConnectionException(code) ||
			pgerrcode.IsInsufficientResources(code) ||
			pgerrcode.IsOperatorIntervention(code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}
