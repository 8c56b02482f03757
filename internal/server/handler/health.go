package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports the health of one backing dependency.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint. It probes each registered
// dependency with a short timeout and reports per-dependency status.
type HealthHandler struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps maps a dependency name
// ("postgres", "redis", "s3") to its health probe; nil values are skipped.
func NewHealthHandler(deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	probes := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			probes[name] = p
		}
	}
	return &HealthHandler{deps: probes, logger: logger}
}

// HealthCheck responds with overall and per-dependency status. A failing
// dependency degrades the response to 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	deps := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if err := p.Health(ctx); err != nil {
			deps[name] = err.Error()
			overall = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.WarnContext(r.Context(), "handler: dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
