// Package router serves the ops endpoints of the booking client: a health
// probe that checks the upstream API and the Prometheus scrape endpoint.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/citas/internal/citas"
	httpmiddleware "github.com/wolfman30/citas/internal/http/middleware"
	"github.com/wolfman30/citas/pkg/logging"
)

const healthTimeout = 3 * time.Second

// HealthChecker reports upstream API health.
type HealthChecker interface {
	Health(ctx context.Context) (*citas.Health, error)
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Upstream       HealthChecker
	MetricsHandler http.Handler
}

// New creates a chi router with the ops routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/healthz", healthHandler(cfg.Upstream, cfg.Logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	return r
}

type healthResponse struct {
	Status string `json:"status"`
	API    string `json:"api"`
	DB     string `json:"db,omitempty"`
}

func healthHandler(upstream HealthChecker, logger *logging.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", API: "unchecked"}
		status := http.StatusOK
		if upstream != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			h, err := upstream.Health(ctx)
			if err != nil {
				logger.Warn("upstream health check failed", "error", err)
				resp.Status = "degraded"
				resp.API = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				resp.API = h.Status
				resp.DB = h.DB
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
