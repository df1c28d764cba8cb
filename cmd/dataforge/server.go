package main

import (
	"encoding/json"
	"net/http"

	"github.com/c360/dataforge/config"
	"github.com/c360/dataforge/health"
	"github.com/c360/dataforge/metric"
	"github.com/c360/dataforge/pipeline"
	"github.com/c360/dataforge/source"
)

// newAdminServer builds the admin HTTP surface: Prometheus metrics, health
// aggregation and read-only views of sources and pipelines.
func newAdminServer(
	cfg config.HTTPConfig,
	metrics *metric.Registry,
	monitor *health.Monitor,
	registry *source.Registry,
	manager *pipeline.Manager,
) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := monitor.AggregateHealth(appName)
		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	mux.HandleFunc("GET /sources", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, registry.List(""))
	})

	mux.HandleFunc("GET /pipelines", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, manager.ListPipelines())
	})

	return &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: cfg.ReadTimeout,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
