package repositories

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type TenantRepository struct {
	db *database.DB
}

func NewTenantRepository(db *database.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, key_hash, fields, created_at`

func scanTenantRow(scanner rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	if err := scanner.Scan(&t.ID, &t.KeyHash, &t.Fields, &t.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

// Create stores a new tenant and assigns its ID
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	tenant.ID = uuid.New().String()
	tenant.CreatedAt = time.Now().UTC()
	if tenant.Fields == nil {
		tenant.Fields = []string{}
	}

	query := `
		INSERT INTO tenants (id, key_hash, fields, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + tenantColumns

	return scanTenantRow(r.db.Pool.QueryRow(ctx, query, tenant.ID, tenant.KeyHash, tenant.Fields, tenant.CreatedAt))
}

// GetByKeyHash resolves a tenant from the hash of its key
func (r *TenantRepository) GetByKeyHash(ctx context.Context, keyHash string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE key_hash = $1`
	return scanTenantRow(r.db.Pool.QueryRow(ctx, query, keyHash))
}

// AddField declares a new detail field. Declaring an existing field is a conflict.
func (r *TenantRepository) AddField(ctx context.Context, tenantID, name string) (*models.Tenant, error) {
	var updated *models.Tenant
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tenant, err := lockTenant(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if tenant.HasField(name) {
			return fmt.Errorf("field %q: %w", name, models.ErrConflict)
		}

		query := `UPDATE tenants SET fields = array_append(fields, $2) WHERE id = $1 RETURNING ` + tenantColumns
		updated, err = scanTenantRow(tx.QueryRow(ctx, query, tenantID, name))
		return err
	})
	return updated, err
}

// RemoveField drops a detail field from the tenant and from every account and
// unique identifier that carries it.
func (r *TenantRepository) RemoveField(ctx context.Context, tenantID, name string) (*models.Tenant, error) {
	var updated *models.Tenant
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tenant, err := lockTenant(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if !slices.Contains(tenant.Fields, name) {
			return fmt.Errorf("field %q: %w", name, models.ErrNotFound)
		}

		if _, err := tx.Exec(ctx, `UPDATE accounts SET details = details - $2, updated_at = NOW() WHERE tenant_id = $1`, tenantID, name); err != nil {
			return database.MapPostgresError(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM account_identifiers WHERE tenant_id = $1 AND name = $2`, tenantID, name); err != nil {
			return database.MapPostgresError(err)
		}

		query := `UPDATE tenants SET fields = array_remove(fields, $2) WHERE id = $1 RETURNING ` + tenantColumns
		updated, err = scanTenantRow(tx.QueryRow(ctx, query, tenantID, name))
		return err
	})
	return updated, err
}

func lockTenant(ctx context.Context, tx pgx.Tx, tenantID string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 FOR UPDATE`
	return scanTenantRow(tx.QueryRow(ctx, query, tenantID))
}
