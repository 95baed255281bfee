package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminTokenHeader carries the provisioning token required by tenant creation
// when one is configured
const AdminTokenHeader = "X-Admin-Token"

// TenantServiceInterface defines the interface for tenant provisioning
type TenantServiceInterface interface {
	Create(ctx context.Context, fields []string) (*models.Tenant, string, error)
	AddField(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error)
	RemoveField(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error)
}

// TenantHandler handles tenant provisioning and field management
type TenantHandler struct {
	service    TenantServiceInterface
	adminToken string
}

// NewTenantHandler creates a new TenantHandler. An empty adminToken leaves
// tenant creation open.
func NewTenantHandler(service TenantServiceInterface, adminToken string) *TenantHandler {
	return &TenantHandler{
		service:    service,
		adminToken: adminToken,
	}
}

type CreateTenantRequest struct {
	Fields []string `json:"fields" validate:"unique,dive,required,max=63"`
}

type FieldRequest struct {
	Name string `json:"name" validate:"required,max=63"`
}

type TenantResponse struct {
	TenantID  string    `json:"tenant_id"`
	TenantKey string    `json:"tenant_key,omitempty"`
	Fields    []string  `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
}

func toTenantResponse(t *models.Tenant) TenantResponse {
	fields := t.Fields
	if fields == nil {
		fields = []string{}
	}
	return TenantResponse{TenantID: t.ID, Fields: fields, CreatedAt: t.CreatedAt}
}

// Create provisions a tenant and returns its key once
// @Router /tenants [post]
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.adminToken != "" {
		provided := r.Header.Get(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminToken)) != 1 {
			pkghttp.WriteForbidden(w, "Tenant creation not permitted")
			return
		}
	}

	var req CreateTenantRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	tenant, plainKey, err := h.service.Create(r.Context(), req.Fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := toTenantResponse(tenant)
	resp.TenantKey = plainKey
	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Get returns the authenticated tenant
// @Router /tenant [get]
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// AddField declares a custom detail field
// @Router /tenant/fields [post]
func (h *TenantHandler) AddField(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req FieldRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	updated, err := h.service.AddField(r.Context(), tenant, req.Name)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Field already exists")
			return
		}
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toTenantResponse(updated))
}

// RemoveField drops a custom detail field and its values
// @Router /tenant/fields/{name} [delete]
func (h *TenantHandler) RemoveField(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		pkghttp.WriteBadRequest(w, "Field name is required")
		return
	}

	updated, err := h.service.RemoveField(r.Context(), tenant, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Field not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toTenantResponse(updated))
}
