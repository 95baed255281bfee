package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/riskgate/internal/models"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/BradenHooton/riskgate/pkg/logger"
)

// TenantKeyHeader carries the tenant key on every tenant-scoped request
const TenantKeyHeader = "X-Tenant-Key"

type contextKey string

const (
	tenantContextKey  contextKey = "tenant"
	sessionContextKey contextKey = "session"
)

// TenantAuthenticator resolves a plaintext tenant key to its tenant
type TenantAuthenticator interface {
	Authenticate(ctx context.Context, plainKey string) (*models.Tenant, error)
}

// TenantMiddleware authenticates the X-Tenant-Key header and injects the
// tenant into the request context. Rejections are audited with the client IP.
func TenantMiddleware(authenticator TenantAuthenticator, auditLogger *logger.AuditLogger, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(TenantKeyHeader)
			if key == "" {
				pkghttp.WriteUnauthorized(w, "missing tenant key")
				return
			}

			tenant, err := authenticator.Authenticate(r.Context(), key)
			if err != nil {
				if auditLogger != nil {
					auditLogger.LogTenantAction(r.Context(), logger.AuditEvent{
						EventType:     logger.EventTenantRejected,
						IPAddress:     pkghttp.ExtractClientIP(r, ipConfig),
						UserAgent:     r.UserAgent(),
						FailureReason: err.Error(),
					})
				}
				if errors.Is(err, models.ErrUnknownTenant) {
					pkghttp.WriteUnauthorized(w, "invalid tenant key")
					return
				}
				pkghttp.WriteServiceUnavailable(w, "unable to verify tenant key")
				return
			}

			ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware validates a Bearer session token issued by this service,
// which must belong to the tenant already resolved by TenantMiddleware.
func SessionMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			if tenant := TenantFromContext(r.Context()); tenant == nil || tenant.ID != claims.TenantID {
				pkghttp.WriteUnauthorized(w, "session belongs to another tenant")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the authenticated tenant, nil outside TenantMiddleware
func TenantFromContext(ctx context.Context) *models.Tenant {
	tenant, _ := ctx.Value(tenantContextKey).(*models.Tenant)
	return tenant
}

// SessionFromContext returns the validated session claims
func SessionFromContext(ctx context.Context) *models.TokenClaims {
	claims, _ := ctx.Value(sessionContextKey).(*models.TokenClaims)
	return claims
}

// WithTenant returns a copy of ctx carrying tenant, for handlers mounted
// behind TenantMiddleware and their tests.
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

// WithSession returns a copy of ctx carrying validated session claims
func WithSession(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, sessionContextKey, claims)
}
