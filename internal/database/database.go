package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"family-booking/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const pgUniqueViolation = "23505"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories can run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter starts transactions. *pgxpool.Pool and pgx.Tx implement it.
type TxStarter interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, url string, log *logrus.Entry) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("database.Connect: parse url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database.Connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, &models.TransientStoreError{Op: "database.Connect", Err: err}
	}

	log.WithField("max_conns", cfg.MaxConns).Info("database connection established")
	return pool, nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db TxStarter, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db, fn)
}

// MapError translates driver errors into domain errors. Missing rows become
// notFound, unique violations become duplicate, and connection level failures
// become a TransientStoreError. Anything else is returned unchanged.
func MapError(op string, err error, notFound, duplicate error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation && duplicate != nil {
			return duplicate
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if IsTransient(err) {
		return &models.TransientStoreError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient reports whether err is a network or timeout failure that is
// safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connErr *pgconn.ConnectError
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.As(err, &connErr)
}
