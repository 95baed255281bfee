package services

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BradenHooton/riskgate/internal/models"
)

// fieldNamePattern restricts custom detail fields to identifier-like names
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func validateFieldName(name string) error {
	if models.IsReservedField(name) {
		return fmt.Errorf("%w: %q", models.ErrReservedField, name)
	}
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid field name %q", models.ErrBadRequest, name)
	}
	return nil
}

// validateDetailKeys requires every key to be a declared field of the tenant
func validateDetailKeys(tenant *models.Tenant, details map[string]string) error {
	for key := range details {
		if models.IsReservedField(key) {
			return fmt.Errorf("%w: %q", models.ErrReservedField, key)
		}
		if !tenant.HasField(key) {
			return fmt.Errorf("%w: unknown field %q", models.ErrBadRequest, key)
		}
	}
	return nil
}

// validateIdentifier accepts "id" or one of the tenant's fields
func validateIdentifier(tenant *models.Tenant, identifier string) error {
	if identifier == "id" || tenant.HasField(identifier) {
		return nil
	}
	if models.IsReservedField(identifier) {
		return fmt.Errorf("%w: %q cannot identify an account", models.ErrReservedField, identifier)
	}
	return fmt.Errorf("%w: unknown identifier %q", models.ErrBadRequest, identifier)
}

// passThrough are the store errors callers can act on; anything else is
// logged and hidden behind ErrInternalServer.
var passThrough = []error{
	models.ErrNotFound,
	models.ErrConflict,
	models.ErrBadRequest,
	models.ErrStoreUnavailable,
}

func mapStoreError(logger *slog.Logger, op string, err error) error {
	for _, target := range passThrough {
		if errors.Is(err, target) {
			if target == models.ErrStoreUnavailable {
				logger.Error(op+" failed: store unavailable", slog.Any("error", err))
			}
			return err
		}
	}
	logger.Error(op+" failed", slog.Any("error", err))
	return models.ErrInternalServer
}
