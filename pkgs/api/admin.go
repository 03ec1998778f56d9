package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// AdminRouter serves /metrics and /health on the internal port. Each named
// check runs on every health request.
func AdminRouter(checks map[string]HealthCheck) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		handleHealth(w, req, checks)
	}).Methods("GET")

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request, checks map[string]HealthCheck) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    overall,
		"checks":    results,
		"timestamp": time.Now().UTC(),
	})
}
