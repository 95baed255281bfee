package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// TenantRepository defines the interface for tenant data access
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
	GetByKeyHash(ctx context.Context, keyHash string) (*models.Tenant, error)
	AddField(ctx context.Context, tenantID, name string) (*models.Tenant, error)
	RemoveField(ctx context.Context, tenantID, name string) (*models.Tenant, error)
}

// TenantService provisions tenants and manages their detail fields
type TenantService struct {
	repo        TenantRepository
	keys        *auth.TenantKeyManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewTenantService creates a new TenantService
func NewTenantService(repo TenantRepository, keys *auth.TenantKeyManager, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *TenantService {
	return &TenantService{
		repo:        repo,
		keys:        keys,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create provisions a tenant with the given custom fields and returns it with
// its plaintext key, which is not retrievable afterwards.
func (s *TenantService) Create(ctx context.Context, fields []string) (*models.Tenant, string, error) {
	seen := make(map[string]bool, len(fields))
	for _, name := range fields {
		if err := validateFieldName(name); err != nil {
			return nil, "", err
		}
		if seen[name] {
			return nil, "", fmt.Errorf("%w: duplicate field %q", models.ErrBadRequest, name)
		}
		seen[name] = true
	}

	plainKey, hash, err := s.keys.Generate()
	if err != nil {
		s.logger.Error("failed to generate tenant key", slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	tenant, err := s.repo.Create(ctx, &models.Tenant{KeyHash: hash, Fields: append([]string{}, fields...)})
	if err != nil {
		return nil, "", mapStoreError(s.logger, "create tenant", err)
	}

	s.logger.Info("tenant created", slog.String("tenant_id", tenant.ID), slog.Int("fields", len(tenant.Fields)))
	s.auditLogger.LogTenantAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventTenantCreated,
		TenantID:  tenant.ID,
		Success:   true,
	})

	return tenant, plainKey, nil
}

// Authenticate resolves a plaintext tenant key. Unknown and malformed keys
// both yield ErrUnknownTenant.
func (s *TenantService) Authenticate(ctx context.Context, plainKey string) (*models.Tenant, error) {
	hash, err := s.keys.Hash(plainKey)
	if err != nil {
		return nil, err
	}

	tenant, err := s.repo.GetByKeyHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnknownTenant
		}
		return nil, mapStoreError(s.logger, "authenticate tenant", err)
	}
	if !auth.ConstantTimeHashCompare(tenant.KeyHash, hash) {
		return nil, models.ErrUnknownTenant
	}

	return tenant, nil
}

// AddField declares a new custom detail field
func (s *TenantService) AddField(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error) {
	if err := validateFieldName(name); err != nil {
		return nil, err
	}

	updated, err := s.repo.AddField(ctx, tenant.ID, name)
	if err != nil {
		return nil, mapStoreError(s.logger, "add tenant field", err)
	}

	s.auditLogger.LogTenantAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventFieldAdded,
		TenantID:  tenant.ID,
		Success:   true,
		Metadata:  map[string]string{"field": name},
	})
	return updated, nil
}

// RemoveField drops a custom field together with every account's value for it
func (s *TenantService) RemoveField(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error) {
	if models.IsReservedField(name) {
		return nil, fmt.Errorf("%w: %q", models.ErrReservedField, name)
	}

	updated, err := s.repo.RemoveField(ctx, tenant.ID, name)
	if err != nil {
		return nil, mapStoreError(s.logger, "remove tenant field", err)
	}

	s.auditLogger.LogTenantAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventFieldRemoved,
		TenantID:  tenant.ID,
		Success:   true,
		Metadata:  map[string]string{"field": name},
	})
	return updated, nil
}
