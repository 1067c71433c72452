package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/response"
)

// HealthCheck reports a dependency as unhealthy by returning an error.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	if !healthy {
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependency check failed", results)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "ok", "checks": results})
}
