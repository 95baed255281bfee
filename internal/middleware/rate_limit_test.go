package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(rpm int) http.Handler {
	return RateLimitByTenantIP(RateLimitConfig{RequestsPerMinute: rpm})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func tenantRequest(tenantID, remoteAddr, path string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remoteAddr
	return req.WithContext(auth.WithTenant(req.Context(), &models.Tenant{ID: tenantID}))
}

func TestRateLimitByTenantIP_EnforcesLimit(t *testing.T) {
	handler := limitedHandler(3)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, tenantRequest("tenant-a", "192.0.2.1:4000", "/login"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, tenantRequest("tenant-a", "192.0.2.1:4000", "/login"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp.Error)
}

func TestRateLimitByTenantIP_SeparateBuckets(t *testing.T) {
	handler := limitedHandler(1)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, tenantRequest("tenant-a", "192.0.2.1:4000", "/login"))
	assert.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"other tenant", tenantRequest("tenant-b", "192.0.2.1:4000", "/login")},
		{"other ip", tenantRequest("tenant-a", "192.0.2.2:4000", "/login")},
		{"other endpoint", tenantRequest("tenant-a", "192.0.2.1:4000", "/mfa/verify")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, tt.req)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestRateLimitByTenantIP_NoTenant(t *testing.T) {
	handler := limitedHandler(1)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "198.51.100.7:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
