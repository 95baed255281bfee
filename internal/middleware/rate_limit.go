package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	IPConfig          *pkghttp.IPConfig
}

// DefaultAuthRateLimit returns the default limit for credential endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// RateLimitByTenantIP limits requests per tenant, client IP and endpoint.
// It must run after TenantMiddleware; requests without a tenant share the
// IP bucket.
func RateLimitByTenantIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(tenantKey, clientIPKey(config.IPConfig), httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}

func tenantKey(r *http.Request) (string, error) {
	if tenant := auth.TenantFromContext(r.Context()); tenant != nil {
		return tenant.ID, nil
	}
	return "", nil
}

func clientIPKey(ipConfig *pkghttp.IPConfig) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return pkghttp.ExtractClientIP(r, ipConfig), nil
	}
}
