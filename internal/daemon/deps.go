// SPDX-License-Identifier: MIT

package daemon

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
// This allows for clean dependency injection and easier testing.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// Server holds timeouts and the connection cap of the API listener
	Server config.ServerConfig

	// APIAddr is the API listen address (e.g. ":8088")
	APIAddr string

	// APIHandler is the HTTP handler for the API server
	APIHandler http.Handler

	// MetricsAddr is the metrics listen address; empty disables the server
	MetricsAddr string

	// MetricsHandler is the HTTP handler for Prometheus metrics
	MetricsHandler http.Handler
}

// Validate reports every missing or inconsistent field at once.
func (d *Deps) Validate() error {
	var problems []string
	if d.Logger.GetLevel() == zerolog.Disabled {
		problems = append(problems, "logger is disabled")
	}
	if d.APIHandler == nil {
		problems = append(problems, "api handler is nil")
	}
	if strings.TrimSpace(d.APIAddr) == "" {
		problems = append(problems, "api listen address is empty")
	}
	if d.MetricsAddr != "" && d.MetricsHandler == nil {
		problems = append(problems, "metrics address set without a metrics handler")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDeps, strings.Join(problems, "; "))
	}
	return nil
}
