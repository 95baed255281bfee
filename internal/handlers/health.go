package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// HealthChecker reports whether the user store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Classifier string `json:"classifier"`
}

// Health reports database reachability and whether a classifier model was
// loaded. Without a model every evaluated login escalates to MFA, so the
// service is degraded but still up.
func Health(db HealthChecker, classifierLoaded bool) http.HandlerFunc {
	classifier := "loaded"
	if !classifierLoaded {
		classifier = "unavailable"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down", Classifier: classifier})
			return
		}

		status := "healthy"
		if !classifierLoaded {
			status = "degraded"
		}
		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: status, Database: "up", Classifier: classifier})
	}
}
