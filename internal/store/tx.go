package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	txMaxAttempts  = 4
	txInitialDelay = 25 * time.Millisecond
)

// retryable Postgres SQLSTATEs: serialization failure, deadlock
// detected, lock not available.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

// withTx runs fn inside a transaction, retrying a bounded number of
// times with backoff when the database reports contention. Exhausted
// retries surface as ErrStorageFailure wrapping the last error.
func withTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var lastErr error
	delay := txInitialDelay
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := runTx(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: retries exhausted: %v", ErrStorageFailure, lastErr)
}

func runTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
