package database

import (
	"context"
	"fmt"

	"github.com/BradenHooton/riskgate/internal/database/migrations"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded schema migrations through the pgx stdlib adapter
func (db *DB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if db.logger != nil {
		for _, r := range results {
			db.logger.Info("applied migration", "source", r.Source.Path, "duration", r.Duration)
		}
	}
	return nil
}
