// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/minios/internal/auth"
	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/modules"
	"github.com/ManuGH/minios/internal/ratelimit"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      modules.PublicUser `json:"user"`
}

// requireAuth resolves the bearer token or session cookie and stores the
// principal in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ratelimit.GetClientIP(r)
		token := auth.ExtractToken(r)
		if token == "" {
			s.audit.AuthMissing(ip, r.URL.Path)
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		p, err := s.sessions.Resolve(token)
		if err != nil {
			s.audit.AuthFailure(ip, r.URL.Path, err.Error())
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = log.ContextWithUser(ctx, p.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loginAllowed applies the per-IP login limiter, writing a 429 when the
// client is over its budget.
func (s *Server) loginAllowed(w http.ResponseWriter, r *http.Request, ip string) bool {
	if s.limiter == nil || s.limiter.Allow(ip, ratelimit.KindLogin) {
		return true
	}
	s.audit.RateLimitExceeded(ip, r.URL.Path)
	w.Header().Set("Retry-After", "1")
	RespondError(w, r, http.StatusTooManyRequests, ErrRateLimited)
	return false
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.GetClientIP(r)
	if !s.loginAllowed(w, r, ip) {
		return
	}
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	err := s.eng.Modules().Login().Register(req.Email, req.Password)
	s.audit.Register(r.Context(), req.Email, ip, err)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"email": req.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.GetClientIP(r)
	if !s.loginAllowed(w, r, ip) {
		return
	}
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	user, err := s.eng.Modules().Login().Login(req.Email, req.Password)
	s.audit.Login(r.Context(), req.Email, ip, err)
	if err != nil {
		if errors.Is(err, modules.ErrInvalidCredentials) {
			RespondError(w, r, http.StatusUnauthorized, ErrBadCredentials)
			return
		}
		respondErr(w, r, err)
		return
	}

	token, session := s.sessions.Create(user.Email)
	ttl := s.sessions.TTL()
	resp := loginResponse{Token: token, User: user}
	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		resp.ExpiresAt = session.CreatedAt.Add(ttl)
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		s.sessions.Revoke(p.Token)
	}
	s.audit.Logout(r.Context(), ratelimit.GetClientIP(r))
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// principal returns the caller; requireAuth guarantees one exists.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
