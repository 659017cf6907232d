package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/pkg/webhooks"
)

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Health checks the configured dependencies. Unconfigured ones are omitted.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:    "healthy",
		Checks:    map[string]bool{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.repo != nil {
		h.Checks["database"] = s.repo.Ping(ctx) == nil
	}
	if s.nc != nil {
		h.Checks["comms"] = s.nc.Status() == comms.CONNECTED
	}
	for _, ok := range h.Checks {
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.Health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// homeData is the body of GET /: the application, its webhook endpoints and
// the functions currently in the catalog.
type homeData struct {
	Application string            `json:"application"`
	Endpoints   map[string]string `json:"endpoints"`
	Functions   []string          `json:"functions"`
}

func (s *Server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes, _ := s.cfg.Routes()
		endpoints := make(map[string]string, len(routes))
		for _, provider := range webhooks.Providers(routes) {
			endpoints[s.router.Path(provider)] = routes[provider]
		}
		writeJSON(w, http.StatusOK, homeData{
			Application: s.cfg.ApplicationID,
			Endpoints:   endpoints,
			Functions:   s.catalog.Names(s.cfg.ApplicationID),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", logPrefix, err))
	}
}
