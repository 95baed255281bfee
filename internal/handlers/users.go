package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// UserServiceInterface defines the interface for account management
type UserServiceInterface interface {
	Lookup(ctx context.Context, tenant *models.Tenant, identifier, value string) ([]*models.Account, error)
	List(ctx context.Context, tenant *models.Tenant) ([]*models.Account, error)
	Update(ctx context.Context, tenant *models.Tenant, in services.UpdateInput) ([]*models.Account, error)
	Delete(ctx context.Context, tenant *models.Tenant, identifier, value string) (int64, error)
}

// UserHandler handles account management requests
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Request/Response DTOs

// IdentifierRequest selects accounts by "id" or a detail field
type IdentifierRequest struct {
	Identifier string `json:"identifier" validate:"required,max=63"`
	Value      string `json:"value" validate:"required,max=1024"`
}

// UpdateUserRequest represents the request body for updating accounts
type UpdateUserRequest struct {
	Identifier    string            `json:"identifier" validate:"required,max=63"`
	Value         string            `json:"value" validate:"required,max=1024"`
	Details       map[string]string `json:"details" validate:"dive,keys,required,max=63,endkeys,max=1024"`
	Password      *string           `json:"password" validate:"omitempty,max=72"`
	Attempts      *int              `json:"attempts" validate:"omitempty,gte=0"`
	TotalLogins   *int              `json:"total_logins" validate:"omitempty,gte=0"`
	BreakDefaults bool              `json:"break_defaults"`
}

// UserResponse is an account as exposed to its tenant. The password hash and
// MFA key are never returned.
type UserResponse struct {
	ID          string            `json:"id"`
	Details     map[string]string `json:"details"`
	Attempts    int               `json:"attempts"`
	TotalLogins int               `json:"total_logins"`
	AllAttempts []int             `json:"all_attempts"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListUsersResponse represents a list of accounts
type ListUsersResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}

type DeleteUsersResponse struct {
	Deleted int64 `json:"deleted"`
}

func accountToResponse(a *models.Account) *UserResponse {
	details := a.Details
	if details == nil {
		details = map[string]string{}
	}
	allAttempts := a.Counters.AllAttempts
	if allAttempts == nil {
		allAttempts = []int{}
	}
	return &UserResponse{
		ID:          a.ID,
		Details:     details,
		Attempts:    a.Counters.Attempts,
		TotalLogins: a.Counters.TotalLogins,
		AllAttempts: allAttempts,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func writeAccounts(w http.ResponseWriter, accounts []*models.Account) {
	resp := ListUsersResponse{Users: make([]*UserResponse, 0, len(accounts)), Total: len(accounts)}
	for _, a := range accounts {
		resp.Users = append(resp.Users, accountToResponse(a))
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ListUsers returns every account of the tenant
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	accounts, err := h.service.List(r.Context(), tenant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAccounts(w, accounts)
}

// LookupUsers returns the accounts matching an identifier
// @Router /users/lookup [post]
func (h *UserHandler) LookupUsers(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req IdentifierRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	accounts, err := h.service.Lookup(r.Context(), tenant, req.Identifier, req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAccounts(w, accounts)
}

// UpdateUsers patches the accounts matching an identifier
// @Router /users [patch]
func (h *UserHandler) UpdateUsers(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req UpdateUserRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	accounts, err := h.service.Update(r.Context(), tenant, services.UpdateInput{
		Identifier:    req.Identifier,
		Value:         req.Value,
		Details:       req.Details,
		Password:      req.Password,
		Attempts:      req.Attempts,
		TotalLogins:   req.TotalLogins,
		BreakDefaults: req.BreakDefaults,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAccounts(w, accounts)
}

// DeleteUsers removes the accounts matching an identifier
// @Router /users [delete]
func (h *UserHandler) DeleteUsers(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req IdentifierRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	n, err := h.service.Delete(r.Context(), tenant, req.Identifier, req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, DeleteUsersResponse{Deleted: n})
}
