// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strings"

	"github.com/ManuGH/minios/internal/ratelimit"
	"github.com/ManuGH/minios/internal/telemetry"
)

type execRequest struct {
	Command string `json:"command"`
}

type execResponse struct {
	Lines []string `json:"lines"`
	Error string   `json:"error,omitempty"`
}

// handleTerminalExec runs one terminal line. Command failures are part of
// the output and still answer 200.
func (s *Server) handleTerminalExec(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if s.limiter != nil && !s.limiter.Allow(p.ID(), ratelimit.KindTerminal) {
		s.audit.RateLimitExceeded(ratelimit.GetClientIP(r), r.URL.Path)
		w.Header().Set("Retry-After", "1")
		RespondError(w, r, http.StatusTooManyRequests, ErrRateLimited)
		return
	}

	var req execRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	input := strings.TrimSpace(req.Command)
	word, _, _ := strings.Cut(input, " ")

	res := s.term.Exec(r.Context(), input)
	if input != "" {
		s.audit.TerminalExec(r.Context(), word, res.Err)
	}
	telemetry.Annotate(r.Context(), res.Err, telemetry.TerminalAttributes(strings.ToLower(word), res.Failed())...)

	resp := execResponse{Lines: res.Lines}
	if resp.Lines == nil {
		resp.Lines = []string{}
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTerminalHistory(w http.ResponseWriter, _ *http.Request) {
	history := s.term.History()
	if history == nil {
		history = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"history": history})
}
