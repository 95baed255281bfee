package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `id, tenant_id, password_hash, details, attempts, total_logins, all_attempts, mfa_key, created_at, updated_at`

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	err := scanner.Scan(
		&a.ID, &a.TenantID, &a.PasswordHash, &a.Details,
		&a.Counters.Attempts, &a.Counters.TotalLogins, &a.Counters.AllAttempts, &a.Counters.MFAKey,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if a.Details == nil {
		a.Details = map[string]string{}
	}
	return &a, nil
}

func scanAccountRows(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}
	return accounts, nil
}

// AccountRepository is the Postgres user store. Every state transition of an
// account runs under a row lock taken by WithAccountLock.
type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts the account, its unique identifiers and its first login
// observation in one transaction. An identifier value already used within the
// tenant is ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account, uniqueIdentifiers []string, first models.Observation) (*models.Account, error) {
	account.ID = uuid.New().String()
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Details == nil {
		account.Details = map[string]string{}
	}
	if account.Counters.AllAttempts == nil {
		account.Counters.AllAttempts = []int{}
	}

	var created *models.Account
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO accounts (id, tenant_id, password_hash, details, attempts, total_logins, all_attempts, mfa_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING ` + accountColumns

		var err error
		created, err = scanAccountRow(tx.QueryRow(ctx, query,
			account.ID, account.TenantID, account.PasswordHash, account.Details,
			account.Counters.Attempts, account.Counters.TotalLogins, account.Counters.AllAttempts, account.Counters.MFAKey,
			account.CreatedAt, account.UpdatedAt,
		))
		if err != nil {
			return err
		}

		for _, name := range uniqueIdentifiers {
			_, err := tx.Exec(ctx,
				`INSERT INTO account_identifiers (tenant_id, account_id, name, value) VALUES ($1, $2, $3, $4)`,
				account.TenantID, account.ID, name, account.Details[name],
			)
			if err != nil {
				return fmt.Errorf("identifier %q: %w", name, database.MapPostgresError(err))
			}
		}

		return appendObservation(ctx, tx, account.ID, first)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Find returns the tenant's accounts selected by match, oldest first
func (r *AccountRepository) Find(ctx context.Context, tenantID string, match models.AccountMatch) ([]*models.Account, error) {
	details := match.Details
	if details == nil {
		details = map[string]string{}
	}

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = $1 AND ($2 = '' OR id::text = $2) AND details @> $3::jsonb
		ORDER BY created_at, id`

	rows, err := r.db.Pool.Query(ctx, query, tenantID, match.ID, details)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanAccountRows(rows)
}

// Update applies patch to one account. Detail keys are merged into the
// existing details, and unique identifiers follow their detail's new value.
func (r *AccountRepository) Update(ctx context.Context, tenantID, accountID string, patch models.AccountPatch) (*models.Account, error) {
	var updated *models.Account
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, tenantID, accountID); err != nil {
			return err
		}

		details := patch.Details
		if details == nil {
			details = map[string]string{}
		}

		query := `
			UPDATE accounts SET
				details = details || $3::jsonb,
				password_hash = COALESCE($4, password_hash),
				attempts = COALESCE($5, attempts),
				total_logins = COALESCE($6, total_logins),
				updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2
			RETURNING ` + accountColumns

		var err error
		updated, err = scanAccountRow(tx.QueryRow(ctx, query,
			tenantID, accountID, details, patch.PasswordHash, patch.Attempts, patch.TotalLogins,
		))
		if err != nil {
			return err
		}

		for name, value := range patch.Details {
			_, err := tx.Exec(ctx,
				`UPDATE account_identifiers SET value = $3 WHERE account_id = $1 AND name = $2`,
				accountID, name, value,
			)
			if err != nil {
				return fmt.Errorf("identifier %q: %w", name, database.MapPostgresError(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the accounts selected by match and reports how many went.
// Observations and identifiers cascade.
func (r *AccountRepository) Delete(ctx context.Context, tenantID string, match models.AccountMatch) (int64, error) {
	details := match.Details
	if details == nil {
		details = map[string]string{}
	}

	query := `DELETE FROM accounts WHERE tenant_id = $1 AND ($2 = '' OR id::text = $2) AND details @> $3::jsonb`

	result, err := r.db.Pool.Exec(ctx, query, tenantID, match.ID, details)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return 0, models.ErrNotFound
	}
	return result.RowsAffected(), nil
}

// DeleteObservationsBefore prunes login observations older than cutoff
func (r *AccountRepository) DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_observations WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// WithAccountLock runs fn in a transaction holding the account's row lock,
// so at most one state transition per account is in flight. fn's writes
// commit together when it returns nil and are discarded otherwise.
func (r *AccountRepository) WithAccountLock(ctx context.Context, tenantID, accountID string, fn func(AccountTx) error) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		account, err := lockAccount(ctx, tx, tenantID, accountID)
		if err != nil {
			return err
		}
		return fn(&accountTx{tx: tx, account: account})
	})
}

func lockAccount(ctx context.Context, tx pgx.Tx, tenantID, accountID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id = $1 AND id::text = $2 FOR UPDATE`
	return scanAccountRow(tx.QueryRow(ctx, query, tenantID, accountID))
}

func appendObservation(ctx context.Context, tx pgx.Tx, accountID string, obs models.Observation) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO login_observations (account_id, latitude, longitude, device, observed_at) VALUES ($1, $2, $3, $4, $5)`,
		accountID, obs.Location.Latitude, obs.Location.Longitude, obs.Device, obs.ObservedAt.UTC(),
	)
	return database.MapPostgresError(err)
}
