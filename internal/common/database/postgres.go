// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"audit-planner/internal/common/config"

	"github.com/lib/pq"
)

// SQLSTATE codes that make a serializable transaction worth retrying.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB         *sql.DB
	maxRetries int
	backoff    time.Duration
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return NewPostgresFromDB(db, cfg.MaxTxRetries), nil
}

// NewPostgresFromDB wraps an already opened handle.
func NewPostgresFromDB(db *sql.DB, maxRetries int) *PostgresClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PostgresClient{DB: db, maxRetries: maxRetries, backoff: 25 * time.Millisecond}
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// WithinTx runs fn in a SERIALIZABLE transaction. Serialization failures
// and deadlocks roll back and re-run fn up to maxRetries times, so fn must
// not keep state across attempts.
func (c *PostgresClient) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.runTx(ctx, fn)
		if err == nil || !IsRetryableTxError(err) || attempt >= c.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
}

func (c *PostgresClient) runTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// IsRetryableTxError reports serialization failures and deadlocks.
func IsRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == sqlStateSerializationFailure || pqErr.Code == sqlStateDeadlockDetected
}
