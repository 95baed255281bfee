package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SecureLogger logs one line per request. Query strings carrying credentials
// are redacted, request bodies are never logged.
func SecureLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// TenantMiddleware derives its own request; CaptureTenant reports back through the sink.
			var tenantID string
			next.ServeHTTP(wrapped, r.WithContext(withTenantSink(r.Context(), &tenantID)))

			path := r.URL.Path
			if pkglogger.SanitizeQueryString(r.URL.RawQuery) {
				path += "?[REDACTED]"
			} else if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", wrapped.Status()),
				slog.Int("bytes", wrapped.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
			}
			if tenantID != "" {
				attrs = append(attrs, slog.String("tenant_id", tenantID))
			}

			level := slog.LevelInfo
			if wrapped.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}

// CaptureTenant records the authenticated tenant for SecureLogger. Mount it
// after TenantMiddleware.
func CaptureTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sink := tenantSink(r.Context()); sink != nil {
			if tenant := auth.TenantFromContext(r.Context()); tenant != nil {
				*sink = tenant.ID
			}
		}
		next.ServeHTTP(w, r)
	})
}
