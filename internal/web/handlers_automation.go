package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"airwatch/internal/automation"
)

// maxDryRunSource caps the body of an inline dry run.
const maxDryRunSource = 256 << 10

// automationView is a script as listed by the API.
type automationView struct {
	*automation.Script
	Running bool `json:"running"`
}

func (s *Server) automationOf(sc *automation.Script) automationView {
	return automationView{Script: sc, Running: s.engine != nil && s.engine.IsRunning(sc.ID)}
}

// automationsEnabled writes a 404 when the server has no automation.
func (s *Server) automationsEnabled(w http.ResponseWriter) bool {
	if s.engine == nil || s.library == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "automation not enabled"})
		return false
	}
	return true
}

// scriptError maps a library error to a status.
func (s *Server) scriptError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, automation.ErrScriptNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
		return
	}
	s.logger.Error("script", "id", id, "err", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (s *Server) handleAPIListAutomations(w http.ResponseWriter, r *http.Request) {
	out := []automationView{}
	if s.library != nil {
		scripts, err := s.library.List()
		if err != nil {
			s.logger.Error("list scripts", "err", err)
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		for _, sc := range scripts {
			out = append(out, s.automationOf(sc))
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIGetAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsEnabled(w) {
		return
	}
	id := r.PathValue("id")
	sc, err := s.library.Get(id)
	if err != nil {
		s.scriptError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.automationOf(sc))
}

// handleAPIReloadAutomation applies an edited script without a restart.
func (s *Server) handleAPIReloadAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsEnabled(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.engine.Reload(id); err != nil {
		if errors.Is(err, automation.ErrScriptNotFound) {
			s.scriptError(w, id, err)
			return
		}
		// The script exists but did not load.
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"running": s.engine.IsRunning(id)})
}

func (s *Server) handleAPIDryRunAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsEnabled(w) {
		return
	}
	id := r.PathValue("id")
	res, err := s.engine.DryRun(id)
	if err != nil {
		s.scriptError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleAPIDryRunSource tries unsaved source, sent as {"source": "..."}.
func (s *Server) handleAPIDryRunSource(w http.ResponseWriter, r *http.Request) {
	if !s.automationsEnabled(w) {
		return
	}
	var req struct {
		Source string `json:"source"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxDryRunSource)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.DryRunCode(req.Source))
}
