// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/minios/internal/process"
	"github.com/ManuGH/minios/internal/telemetry"
)

type launchRequest struct {
	App string `json:"app"`
}

// table returns the process table or writes a 503 when the daemon runs
// without one.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (*process.Table, bool) {
	if s.procs == nil {
		RespondError(w, r, http.StatusServiceUnavailable, &APIError{Code: ErrUnavailable.Code, Message: "process management unavailable"})
		return nil, false
	}
	return s.procs, true
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.Apps())
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.List())
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var req launchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := t.Launch(r.Context(), req.App)
	telemetry.Annotate(r.Context(), err, telemetry.ProcessAttributes(p.PID, req.App)...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*process.Table).Minimize)
}

func (s *Server) handleRestoreWindow(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*process.Table).Restore)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(*process.Table, string) (process.Process, error)) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	p, err := fn(t, chi.URLParam(r, "pid"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	pid := chi.URLParam(r, "pid")
	p, err := t.Kill(r.Context(), pid)
	s.audit.ProcessKill(r.Context(), pid, err)
	telemetry.Annotate(r.Context(), err, telemetry.ProcessAttributes(pid, p.App)...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
