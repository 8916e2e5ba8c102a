package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
)

// TriggerAPI is the trigger name for runs requested over HTTP.
const TriggerAPI = "api"

// handleStatus returns the advisor's run state, including the last error.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

// handleRun starts an analysis run. A run already in progress yields 409;
// the request is not queued.
func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if !s.runner.Start(s.runCtx, TriggerAPI) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "analysis already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// handleListActions lists actions, optionally filtered by
// ?status=proposed,approved.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	var actions []action.Action

	if raw := r.URL.Query().Get("status"); raw != "" {
		var statuses []action.Status
		for _, part := range strings.Split(raw, ",") {
			st := action.Status(strings.TrimSpace(part))
			if !st.Valid() {
				writeBadRequest(w, "unknown status: "+part)
				return
			}
			statuses = append(statuses, st)
		}
		actions = s.actions.Filter(statuses...)
	} else {
		actions = s.actions.Actions()
	}

	if actions == nil {
		actions = []action.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"count":   len(actions),
	})
}

// handleGetAction returns one action by id.
func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.actions.Get(id)
	if !ok {
		writeNotFound(w, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleActionHistory returns the bounded action history, newest first.
func (s *Server) handleActionHistory(w http.ResponseWriter, _ *http.Request) {
	history := s.actions.History()
	out := make([]action.HistoryEntry, len(history))
	for i, h := range history {
		out[len(history)-1-i] = h
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": out,
		"count":   len(out),
	})
}

// handleLearning returns per-key acceptance statistics and window sizes.
func (s *Server) handleLearning(w http.ResponseWriter, _ *http.Request) {
	if s.learning == nil {
		writeJSON(w, http.StatusOK, map[string]any{"stats": map[string]learning.KeyStats{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":    s.learning.Stats(),
		"feedback": len(s.learning.Feedback()),
		"entries":  len(s.learning.Entries()),
		"history":  len(s.learning.History()),
	})
}
