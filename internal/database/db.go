package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels. Connection
// level failures become ErrStoreUnavailable with the cause kept in the chain.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503", "23502", "23514", "22P02": // foreign_key, not_null, check, invalid_text_representation
			return models.ErrBadRequest
		case "55P03", "57014", "40P01": // lock_not_available, query_canceled, deadlock_detected
			return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	return err
}

// WithTransaction runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise. A commit failure is returned to the caller.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return MapPostgresError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = MapPostgresError(tx.Commit(ctx))
	}()

	return fn(tx)
}
