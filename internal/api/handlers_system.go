// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/minios/internal/cache"
	"github.com/ManuGH/minios/internal/engine"
)

type varRequest struct {
	Value json.RawMessage `json:"value"`
}

type systemInfo struct {
	Version string `json:"version"`
	engine.Info
	Cache       cache.CacheStats `json:"cache"`
	Processes   int              `json:"processes"`
	Subscribers int              `json:"notification_subscribers"`
	Dropped     int64            `json:"notifications_dropped"`
}

func (s *Server) handleListVars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Vars().All())
}

func (s *Server) handleGetVar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, ok := s.eng.Vars().Get(name)
	if !ok {
		RespondError(w, r, http.StatusNotFound, &APIError{Code: ErrNotFound.Code, Message: "variable not found: " + name})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": v})
}

// handleSetVar accepts {"value": <any JSON>}.
func (s *Server) handleSetVar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req varRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	var value any
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &value); err != nil {
			badRequest(w, r, err)
			return
		}
	}
	if err := s.eng.Vars().Set(name, value); err != nil {
		respondErr(w, r, err)
		return
	}
	v, _ := s.eng.Vars().Get(name)
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": v})
}

func (s *Server) handleDeleteVar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.eng.Vars().Delete(name) {
		RespondError(w, r, http.StatusNotFound, &APIError{Code: ErrNotFound.Code, Message: "variable not found: " + name})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Save(r.Context()); err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"saved_at": time.Now().UTC()})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	err := s.restart(r.Context())
	s.audit.SystemRestart(r.Context(), err)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.Info()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	hub := s.eng.Notifier()
	resp := systemInfo{
		Version:     s.cfg.Version,
		Info:        info,
		Cache:       s.cache.Stats(),
		Subscribers: hub.Subscribers(),
		Dropped:     hub.Dropped(),
	}
	if s.procs != nil {
		for _, p := range s.procs.List() {
			if p.Live() {
				resp.Processes++
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
