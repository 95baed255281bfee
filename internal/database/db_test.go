package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), models.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, models.ErrBadRequest},
		{"check violation", &pgconn.PgError{Code: "23514"}, models.ErrBadRequest},
		{"deadline", context.DeadlineExceeded, models.ErrStoreUnavailable},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, models.ErrStoreUnavailable},
		{"deadlock", fmt.Errorf("lock account: %w", &pgconn.PgError{Code: "40P01"}), models.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, MapPostgresError(tt.err), tt.want)
		})
	}
}

func TestMapPostgresError_Passthrough(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))

	other := errors.New("boom")
	assert.Same(t, other, MapPostgresError(other))

	syntax := &pgconn.PgError{Code: "42601"}
	assert.Same(t, syntax, MapPostgresError(syntax))
}
