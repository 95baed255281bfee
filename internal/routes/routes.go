package routes

import (
	"net/http"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/handlers"
	"github.com/BradenHooton/riskgate/internal/middleware"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Deps carries everything RegisterRoutes mounts
type Deps struct {
	AuthHandler   *handlers.AuthHandler
	TenantHandler *handlers.TenantHandler
	UserHandler   *handlers.UserHandler
	Health        http.HandlerFunc
	Metrics       http.Handler // nil disables /metrics

	Tenants      auth.TenantAuthenticator
	TokenManager *auth.TokenManager
	AuditLogger  *logger.AuditLogger
	IPConfig     *pkghttp.IPConfig
	RateLimit    middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, d Deps) {
	router.Get("/health", d.Health)
	if d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// Tenant provisioning, optionally gated by the admin token
	router.Post("/tenants", d.TenantHandler.Create)

	// Tenant-scoped routes - X-Tenant-Key required
	router.Group(func(r chi.Router) {
		r.Use(auth.TenantMiddleware(d.Tenants, d.AuditLogger, d.IPConfig))
		r.Use(middleware.CaptureTenant)

		r.Get("/tenant", d.TenantHandler.Get)
		r.Post("/tenant/fields", d.TenantHandler.AddField)
		r.Delete("/tenant/fields/{name}", d.TenantHandler.RemoveField)

		// Credential endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByTenantIP(d.RateLimit))
			r.Post("/users/sign-up", d.AuthHandler.SignUp)
			r.Post("/login", d.AuthHandler.Login)
			r.Post("/mfa/verify", d.AuthHandler.VerifyMFA)
		})

		r.Get("/users", d.UserHandler.ListUsers)
		r.Post("/users/lookup", d.UserHandler.LookupUsers)
		r.Patch("/users", d.UserHandler.UpdateUsers)
		r.Delete("/users", d.UserHandler.DeleteUsers)

		r.With(auth.SessionMiddleware(d.TokenManager)).Get("/session", d.AuthHandler.Session)
	})
}
