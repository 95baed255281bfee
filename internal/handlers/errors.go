package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/riskgate/internal/models"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// writeServiceError renders a service error. Bad requests echo the service
// message, which only ever names fields, never stored values.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeInvalidCredentials, "Password wrong or stale values recorded")
	case errors.Is(err, models.ErrMFAKeyRejected):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeMFARejected, "MFA key incorrect")
	case errors.Is(err, models.ErrAmbiguousAccount):
		pkghttp.WriteError(w, http.StatusBadRequest, pkghttp.CodeAmbiguousAccount, "User does not exist or multiple users match the identifier")
	case errors.Is(err, models.ErrUnknownTenant):
		pkghttp.WriteUnauthorized(w, "Invalid tenant key")
	case errors.Is(err, models.ErrReservedField):
		pkghttp.WriteError(w, http.StatusBadRequest, pkghttp.CodeReservedField, err.Error())
	case errors.Is(err, models.ErrLocationUnavailable):
		pkghttp.WriteError(w, http.StatusBadRequest, pkghttp.CodeLocationUnavailable, "Location missing and could not be derived from the client address")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "No matching user")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Value already in use")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "User store unavailable")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
