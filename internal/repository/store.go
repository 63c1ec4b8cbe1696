package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"crowdtest/internal/service"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	uniqueViolation      = "23505"
	checkViolation       = "23514"

	maxTxRetries   = 5
	txRetryBackoff = 10 * time.Millisecond
)

// Store runs transactions against Postgres at serializable isolation.
// Conflicting transactions abort with a serialization failure and are
// re-run from scratch with exponential backoff; the transaction body must
// therefore be a pure function of the state it reads.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) RunSerializable(ctx context.Context, fn func(tx service.Tx) error) error {
	backoff := retry.WithMaxRetries(maxTxRetries, retry.NewExponential(txRetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ptx pgx.Tx) error {
			return fn(&Tx{tx: ptx})
		})
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Tx implements service.Tx over one open pgx transaction.
type Tx struct {
	tx pgx.Tx
}
