// SPDX-License-Identifier: MIT

// Package api serves the MiniOS HTTP API: the desktop's file explorer,
// trash, control panel, terminal and notification center as JSON endpoints.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/api/middleware"
	"github.com/ManuGH/minios/internal/audit"
	"github.com/ManuGH/minios/internal/auth"
	"github.com/ManuGH/minios/internal/cache"
	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/health"
	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/process"
	"github.com/ManuGH/minios/internal/ratelimit"
	"github.com/ManuGH/minios/internal/shell"
)

// TracingService is the span service name used when telemetry is enabled.
const TracingService = "minios-api"

// Deps are the collaborators of a Server. Engine, Terminal and Sessions are
// required; the rest fall back to inert defaults.
type Deps struct {
	Engine   *engine.Engine
	Procs    *process.Table
	Terminal *shell.Terminal
	Sessions *auth.Manager
	Cache    cache.Cache
	Limiter  *ratelimit.Limiter
	Audit    *audit.Logger
	Health   *health.Manager

	// Restart replaces engine.Restart for POST /system/restart, so the
	// daemon can reload its configuration at the same time.
	Restart func(ctx context.Context) error
}

// Server holds the routed handler and its collaborators.
type Server struct {
	cfg      config.AppConfig
	eng      *engine.Engine
	procs    *process.Table
	term     *shell.Terminal
	sessions *auth.Manager
	cache    cache.Cache
	limiter  *ratelimit.Limiter
	audit    *audit.Logger
	health   *health.Manager
	restart  func(ctx context.Context) error
	logger   zerolog.Logger
	router   chi.Router
}

// New wires the routes for cfg.
func New(cfg config.AppConfig, deps Deps) (*Server, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("api: engine is required")
	case deps.Terminal == nil:
		return nil, errors.New("api: terminal is required")
	case deps.Sessions == nil:
		return nil, errors.New("api: session manager is required")
	}

	s := &Server{
		cfg:      cfg,
		eng:      deps.Engine,
		procs:    deps.Procs,
		term:     deps.Terminal,
		sessions: deps.Sessions,
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		audit:    deps.Audit,
		health:   deps.Health,
		restart:  deps.Restart,
		logger:   log.WithComponent("api"),
	}
	if s.cache == nil {
		s.cache = cache.NewNoOpCache()
	}
	if s.audit == nil {
		s.audit = audit.NewLogger()
	}
	if s.health == nil {
		s.health = health.NewManager(cfg.Version)
		s.health.RegisterChecker(health.NewEngineChecker(s.eng.Ready))
	}
	if s.restart == nil {
		s.restart = s.eng.Restart
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	stack := middleware.StackConfig{
		AllowedOrigins:        s.cfg.API.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		RateLimitEnabled:      s.cfg.API.RateLimit.Enabled,
		RateLimitRPS:          s.cfg.API.RateLimit.RPS,
		RateLimitBurst:        s.cfg.API.RateLimit.Burst,
		OnRateLimited:         s.audit.RateLimitExceeded,
	}
	if s.cfg.Telemetry.Enabled {
		stack.TracingService = TracingService
	}
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)

			r.Get("/fs", s.handleListDir)
			r.Delete("/fs", s.handleDelete)
			r.Get("/fs/file", s.handleReadFile)
			r.Put("/fs/file", s.handleWriteFile)
			r.Post("/fs/folder", s.handleCreateFolder)
			r.Post("/fs/rename", s.handleRename)
			r.Post("/fs/move", s.handleMove)

			r.Get("/trash", s.handleListTrash)
			r.Delete("/trash", s.handleEmptyTrash)
			r.Post("/trash/{id}/restore", s.handleRestore)

			r.Get("/modules", s.handleListModules)
			r.Post("/modules", s.handleCreateModule)
			r.Delete("/modules/{name}", s.handleDropModule)
			r.Get("/modules/{name}/items", s.handleListItems)
			r.Post("/modules/{name}/items", s.handleAddItem)
			r.Get("/modules/{name}/items/{id}", s.handleGetItem)
			r.Patch("/modules/{name}/items/{id}", s.handleEditItem)
			r.Delete("/modules/{name}/items/{id}", s.handleDeleteItem)

			r.Get("/vars", s.handleListVars)
			r.Get("/vars/{name}", s.handleGetVar)
			r.Put("/vars/{name}", s.handleSetVar)
			r.Delete("/vars/{name}", s.handleDeleteVar)

			r.Get("/apps", s.handleListApps)
			r.Get("/processes", s.handleListProcesses)
			r.Post("/processes", s.handleLaunch)
			r.Post("/processes/{pid}/minimize", s.handleMinimize)
			r.Post("/processes/{pid}/restore", s.handleRestoreWindow)
			r.Delete("/processes/{pid}", s.handleKill)

			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications", s.handlePublishNotification)
			r.Get("/notifications/stream", s.handleNotificationStream)

			r.Post("/terminal/exec", s.handleTerminalExec)
			r.Get("/terminal/history", s.handleTerminalHistory)

			r.Post("/system/save", s.handleSave)
			r.Post("/system/restart", s.handleRestart)
			r.Get("/system/info", s.handleSystemInfo)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, http.StatusNotFound, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, http.StatusMethodNotAllowed, &APIError{Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed"})
	})
	return r
}
