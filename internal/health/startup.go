// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/log"
)

// PerformStartupChecks validates the environment before the engine boots.
// The data directory is created when missing.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	logger.Info().Str(log.FieldPath, cfg.DataDir).Msg("data directory is writable")

	if err := checkListenAddr("api", cfg.API.ListenAddr); err != nil {
		return err
	}
	if err := checkListenAddr("metrics", cfg.Metrics.ListenAddr); err != nil {
		return err
	}

	for _, app := range cfg.Apps {
		if len(app.Command) == 0 {
			continue
		}
		if _, err := exec.LookPath(app.Command[0]); err != nil {
			return fmt.Errorf("app %q: command not found: %w", app.Name, err)
		}
	}

	warnVolatileDataDir(logger, cfg.DataDir)

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(name, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
	}
	return nil
}

func warnVolatileDataDir(logger zerolog.Logger, dataDir string) {
	tempDir := filepath.Clean(os.TempDir())
	dir := filepath.Clean(dataDir)
	if tempDir != "." && (dir == tempDir || strings.HasPrefix(dir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str(log.FieldPath, dataDir).
			Msg("data directory is under temp; sandbox and state may be lost on reboot")
	}
}
