package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/risk"
	"github.com/BradenHooton/riskgate/internal/services"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// AuthServiceInterface defines the interface for sign-up, login and MFA
type AuthServiceInterface interface {
	SignUp(ctx context.Context, tenant *models.Tenant, in services.SignUpInput) (*services.SignUpResult, error)
	Login(ctx context.Context, tenant *models.Tenant, in services.LoginInput) (*services.LoginResult, error)
	VerifyMFA(ctx context.Context, tenant *models.Tenant, in services.MFAInput) (*services.MFAResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// SignUpRequest represents the request body for sign-up
type SignUpRequest struct {
	Password          string            `json:"password" validate:"required,max=72"`
	Details           map[string]string `json:"details" validate:"dive,keys,required,max=63,endkeys,max=1024"`
	UniqueIdentifiers []string          `json:"unique_identifiers" validate:"unique,dive,required"`
	Location          *models.Location  `json:"location"`
	Device            string            `json:"device" validate:"max=512"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Details  map[string]string `json:"details" validate:"required,min=1,dive,keys,required,max=63,endkeys,max=1024"`
	Password string            `json:"password" validate:"required,max=72"`
	Location *models.Location  `json:"location"`
	Device   string            `json:"device" validate:"max=512"`
}

// VerifyMFARequest represents the request body for MFA verification
type VerifyMFARequest struct {
	Identifier string `json:"identifier" validate:"required,max=63"`
	Value      string `json:"value" validate:"required,max=1024"`
	MFAKey     string `json:"mfa_key" validate:"required,max=128"`
}

// Response DTOs

type SignUpResponse struct {
	AccountID string `json:"account_id"`
	MFAKey    string `json:"mfa_key"`
	MFAKeyQR  string `json:"mfa_key_qr,omitempty"`
}

// LoginResponse is returned for every login whose password matched. The
// session fields are only present when the outcome is ALLOW.
type LoginResponse struct {
	Outcome      risk.Outcome  `json:"outcome"`
	AccountID    string        `json:"account_id"`
	TrustCount   int           `json:"trust_count"`
	Verdict      *risk.Verdict `json:"verdict,omitempty"`
	FailedClosed bool          `json:"failed_closed,omitempty"`
	SessionToken string        `json:"session_token,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
}

type VerifyMFAResponse struct {
	AccountID    string    `json:"account_id"`
	MFAKey       string    `json:"mfa_key"`
	MFAKeyQR     string    `json:"mfa_key_qr,omitempty"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type SessionResponse struct {
	TenantID  string    `json:"tenant_id"`
	AccountID string    `json:"account_id"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) attemptContext(r *http.Request, location *models.Location, device string) services.AttemptContext {
	return services.AttemptContext{
		Location:  location,
		Device:    device,
		ClientIP:  pkghttp.ClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// qrCode renders key, logging rather than failing when it cannot
func (h *AuthHandler) qrCode(key string) string {
	qr, err := auth.MFAKeyQRCode(key)
	if err != nil {
		h.logger.Warn("failed to render mfa key qr code", slog.Any("error", err))
		return ""
	}
	return qr
}

// SignUp handles account creation
// @Router /users/sign-up [post]
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req SignUpRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.SignUp(r.Context(), tenant, services.SignUpInput{
		Password:          req.Password,
		Details:           req.Details,
		UniqueIdentifiers: req.UniqueIdentifiers,
		Attempt:           h.attemptContext(r, req.Location, req.Device),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, SignUpResponse{
		AccountID: result.Account.ID,
		MFAKey:    result.MFAKey,
		MFAKeyQR:  h.qrCode(result.MFAKey),
	})
}

// Login handles a risk-gated login
// @Router /login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), tenant, services.LoginInput{
		Details:  req.Details,
		Password: req.Password,
		Attempt:  h.attemptContext(r, req.Location, req.Device),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := LoginResponse{
		Outcome:      result.Outcome,
		AccountID:    result.AccountID,
		TrustCount:   result.TrustCount,
		FailedClosed: result.FailedClosed,
		SessionToken: result.SessionToken,
	}
	if result.Evaluated {
		verdict := result.Verdict
		resp.Verdict = &verdict
	}
	if result.SessionToken != "" {
		resp.ExpiresAt = &result.ExpiresAt
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// VerifyMFA handles MFA key verification
// @Router /mfa/verify [post]
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	tenant := auth.TenantFromContext(r.Context())
	if tenant == nil {
		pkghttp.WriteUnauthorized(w, "Tenant not authenticated")
		return
	}

	var req VerifyMFARequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifyMFA(r.Context(), tenant, services.MFAInput{
		Identifier: req.Identifier,
		Value:      req.Value,
		MFAKey:     req.MFAKey,
		Attempt:    h.attemptContext(r, nil, ""),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyMFAResponse{
		AccountID:    result.AccountID,
		MFAKey:       result.NewMFAKey,
		MFAKeyQR:     h.qrCode(result.NewMFAKey),
		SessionToken: result.SessionToken,
		ExpiresAt:    result.ExpiresAt,
	})
}

// Session returns the claims of the caller's session token
// @Router /session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.SessionFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	resp := SessionResponse{
		TenantID:  claims.TenantID,
		AccountID: claims.AccountID,
		Method:    claims.Method,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
