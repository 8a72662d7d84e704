package api

import (
	"encoding/json"
	"net/http"

	"github.com/dailygrind/dailygrind/internal/app/orchestrator"
	"github.com/dailygrind/dailygrind/internal/domain"
)

// ─── Snapshot & Settings ────────────────────────────────────────────────────

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.BuildSnapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.EnsureDailyState(r.Context(), false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	// Partial bodies merge over the defaults: absent fields inherit them,
	// explicit zeroes and falses stick.
	in := domain.DefaultSettings()
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid settings payload"})
		return
	}
	view, err := s.orch.SaveSettings(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Settings)
}

// ─── Actions ────────────────────────────────────────────────────────────────

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	trigger := orchestrator.TriggerManual
	if r.URL.Query().Get("trigger") == string(orchestrator.TriggerAuto) {
		trigger = orchestrator.TriggerAuto
	}
	result := s.orch.PerformCheck(r.Context(), trigger)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReroll(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.Reroll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Daily)
}

type emergencyRequest struct {
	Action string `json:"action"` // "activate" | "deactivate"
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid emergency payload"})
		return
	}
	var (
		view orchestrator.View
		err  error
	)
	switch req.Action {
	case "activate":
		view, err = s.orch.ActivateEmergency(r.Context())
	case "deactivate":
		view, err = s.orch.DeactivateEmergency(r.Context())
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action must be activate or deactivate"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Daily)
}

func (s *Server) handleResetToday(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.ResetToday(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Daily)
}

func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.FactoryReset(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Daily)
}

// ─── Tab Events ─────────────────────────────────────────────────────────────

type enforceRequest struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	var req enforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid enforce payload"})
		return
	}
	decision, err := s.orch.EnforceTab(r.Context(), req.TabID, req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type tabCreatedRequest struct {
	PendingURL string `json:"pending_url"`
}

func (s *Server) handleTabCreated(w http.ResponseWriter, r *http.Request) {
	var req tabCreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab payload"})
		return
	}
	decision, err := s.orch.OnTabCreated(r.Context(), req.PendingURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type startupRequest struct {
	OpenURLs []string `json:"open_urls"`
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	var req startupRequest
	json.NewDecoder(r.Body).Decode(&req) // empty body means no open tabs
	decision, err := s.orch.OnProcessStart(r.Context(), req.OpenURLs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req startupRequest
	json.NewDecoder(r.Body).Decode(&req)
	decision, err := s.orch.OnInstall(r.Context(), req.OpenURLs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// ─── Lookups ────────────────────────────────────────────────────────────────

type validateHandleRequest struct {
	Handle string `json:"handle"`
}

func (s *Server) handleValidateHandle(w http.ResponseWriter, r *http.Request) {
	var req validateHandleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid handle payload"})
		return
	}
	profile, err := s.orch.ValidateHandle(r.Context(), req.Handle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.orch.RecentLogs()
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.judge.FetchTagCatalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}
