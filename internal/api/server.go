// Package api exposes the daily-challenge orchestrator over a local HTTP
// API. Browser-side collaborators report navigation events and the
// popup/options UI reads snapshots; the daemon never pushes to them.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dailygrind/dailygrind/internal/app/orchestrator"
	"github.com/dailygrind/dailygrind/internal/domain"
)

// Server is the dailygrind HTTP API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	judge          domain.JudgeClient
	instanceID     string
	metricsEnabled bool
}

// NewServer creates an API server around the orchestrator. The judge client
// is only used for the tag catalog passthrough.
func NewServer(orch *orchestrator.Orchestrator, judge domain.JudgeClient, instanceID string) *Server {
	return &Server{orch: orch, judge: judge, instanceID: instanceID}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"instance": s.instanceID,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/check", s.handleCheck)
		r.Post("/reroll", s.handleReroll)
		r.Post("/emergency", s.handleEmergency)
		r.Post("/reset", s.handleResetToday)
		r.Post("/factory-reset", s.handleFactoryReset)
		r.Post("/enforce", s.handleEnforce)
		r.Post("/tabs/created", s.handleTabCreated)
		r.Post("/startup", s.handleStartup)
		r.Post("/install", s.handleInstall)
		r.Post("/validate-handle", s.handleValidateHandle)
		r.Get("/logs", s.handleLogs)
		r.Get("/tags", s.handleTags)
	})

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a classified error response. User-invoked actions are
// the only place background error codes surface as live failures.
func writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeMissingHandle, domain.CodeRerollLimit, domain.CodeEmergencyUsed, domain.CodeNoCandidates:
		status = http.StatusConflict
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeInFlight:
		status = http.StatusTooEarly
	case domain.CodeRateLimited:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}
