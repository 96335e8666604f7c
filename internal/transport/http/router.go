// Package httptransport assembles the public HTTP surface: shared middleware,
// operational endpoints and every feature handler.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleetguard/internal/platform/metrics"
	"fleetguard/internal/platform/middleware"
	"fleetguard/pkg/platform/httputil"
	"fleetguard/pkg/platform/middleware/requesttime"
)

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects what NewRouter wires.
type RouterConfig struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Health   map[string]HealthCheck
	Handlers []Registrar
}

// NewRouter wires middleware, /healthz, /metrics and the feature handlers.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Viewer(cfg.Logger))

	r.Get("/healthz", healthz(cfg.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	for _, h := range cfg.Handlers {
		h.Register(r)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
