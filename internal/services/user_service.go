package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/riskgate/internal/models"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// AccountRepository defines the account management operations
type AccountRepository interface {
	Find(ctx context.Context, tenantID string, match models.AccountMatch) ([]*models.Account, error)
	Update(ctx context.Context, tenantID, accountID string, patch models.AccountPatch) (*models.Account, error)
	Delete(ctx context.Context, tenantID string, match models.AccountMatch) (int64, error)
}

// UpdateInput selects accounts by identifier and value and names the columns
// to change. Attempts and TotalLogins are service-managed and only accepted
// together with BreakDefaults.
type UpdateInput struct {
	Identifier    string
	Value         string
	Details       map[string]string
	Password      *string
	Attempts      *int
	TotalLogins   *int
	BreakDefaults bool
}

// UserService handles account management for a tenant
type UserService struct {
	repo        AccountRepository
	hasher      PasswordHasher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(repo AccountRepository, hasher PasswordHasher, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		hasher:      hasher,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Lookup returns every account whose identifier equals value
func (s *UserService) Lookup(ctx context.Context, tenant *models.Tenant, identifier, value string) ([]*models.Account, error) {
	if err := validateIdentifier(tenant, identifier); err != nil {
		return nil, err
	}

	accounts, err := s.repo.Find(ctx, tenant.ID, models.MatchIdentifier(identifier, value))
	if err != nil {
		return nil, mapStoreError(s.logger, "lookup accounts", err)
	}
	return accounts, nil
}

// List returns all accounts of the tenant
func (s *UserService) List(ctx context.Context, tenant *models.Tenant) ([]*models.Account, error) {
	accounts, err := s.repo.Find(ctx, tenant.ID, models.AccountMatch{})
	if err != nil {
		return nil, mapStoreError(s.logger, "list accounts", err)
	}
	return accounts, nil
}

// Update applies the same patch to every matching account
func (s *UserService) Update(ctx context.Context, tenant *models.Tenant, in UpdateInput) ([]*models.Account, error) {
	if err := validateIdentifier(tenant, in.Identifier); err != nil {
		return nil, err
	}

	patch, err := s.buildPatch(tenant, in)
	if err != nil {
		return nil, err
	}

	matches, err := s.repo.Find(ctx, tenant.ID, models.MatchIdentifier(in.Identifier, in.Value))
	if err != nil {
		return nil, mapStoreError(s.logger, "find accounts to update", err)
	}
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}

	updated := make([]*models.Account, 0, len(matches))
	for _, account := range matches {
		acc, err := s.repo.Update(ctx, tenant.ID, account.ID, patch)
		if err != nil {
			return nil, mapStoreError(s.logger, "update account", err)
		}
		updated = append(updated, acc)

		s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventAccountUpdated,
			TenantID:  tenant.ID,
			AccountID: acc.ID,
			Success:   true,
			Metadata:  map[string]string{"break_defaults": fmt.Sprint(in.BreakDefaults)},
		})
	}

	return updated, nil
}

func (s *UserService) buildPatch(tenant *models.Tenant, in UpdateInput) (models.AccountPatch, error) {
	var patch models.AccountPatch

	if err := validateDetailKeys(tenant, in.Details); err != nil {
		return patch, err
	}
	patch.Details = in.Details

	if (in.Attempts != nil || in.TotalLogins != nil) && !in.BreakDefaults {
		return patch, fmt.Errorf("%w: attempts and total_logins require break_defaults", models.ErrReservedField)
	}
	if (in.Attempts != nil && *in.Attempts < 0) || (in.TotalLogins != nil && *in.TotalLogins < 0) {
		return patch, fmt.Errorf("%w: counters must not be negative", models.ErrBadRequest)
	}
	patch.Attempts = in.Attempts
	patch.TotalLogins = in.TotalLogins

	if in.Password != nil {
		hash, err := s.hasher.HashPassword(*in.Password)
		if err != nil {
			if errors.Is(err, pkgauth.ErrPasswordPolicy) {
				return patch, fmt.Errorf("%w: password must be %d to %d characters",
					models.ErrBadRequest, pkgauth.MinPasswordLen, pkgauth.MaxPasswordLen)
			}
			s.logger.Error("failed to hash password", slog.Any("error", err))
			return patch, models.ErrInternalServer
		}
		patch.PasswordHash = &hash
	}

	if patch.IsEmpty() {
		return patch, fmt.Errorf("%w: nothing to update", models.ErrBadRequest)
	}
	return patch, nil
}

// Delete removes every account whose identifier equals value and returns how
// many were removed. No match is ErrNotFound.
func (s *UserService) Delete(ctx context.Context, tenant *models.Tenant, identifier, value string) (int64, error) {
	if err := validateIdentifier(tenant, identifier); err != nil {
		return 0, err
	}

	n, err := s.repo.Delete(ctx, tenant.ID, models.MatchIdentifier(identifier, value))
	if err != nil {
		return 0, mapStoreError(s.logger, "delete accounts", err)
	}

	s.logger.Info("accounts deleted", slog.String("tenant_id", tenant.ID), slog.Int64("count", n))
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventAccountDeleted,
		TenantID:  tenant.ID,
		Success:   true,
		Metadata:  map[string]string{"identifier": identifier, "count": fmt.Sprint(n)},
	})
	return n, nil
}
