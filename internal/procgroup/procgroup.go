// SPDX-License-Identifier: MIT

// Package procgroup starts external commands in their own process group and
// tears whole groups down.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
)

// ErrKillFailed is returned when a group survives SIGKILL past the timeout.
var ErrKillFailed = errors.New("kill operation failed")

// KillGroup terminates the group led by cmd: SIGTERM, wait up to grace for
// exited to close, then SIGKILL and wait up to timeout.
// exited must be closed by whoever calls cmd.Wait. The process MUST have
// been started after Set(cmd).
func KillGroup(cmd *exec.Cmd, exited <-chan struct{}, grace, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := log.WithComponent("procgroup")
	pid := cmd.Process.Pid

	record("SIGTERM", Signal(cmd, syscall.SIGTERM))
	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}

	logger.Warn().Int(log.FieldOSPID, pid).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	record("SIGKILL", Signal(cmd, syscall.SIGKILL))
	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
		return ErrKillFailed
	}
}

func record(sig string, err error) {
	switch {
	case err == nil:
		metrics.IncProcTerminate(sig, "sent")
	case errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(sig, "esrch")
	default:
		metrics.IncProcTerminate(sig, "error")
		logger := log.WithComponent("procgroup")
		logger.Debug().Err(err).Str("signal", sig).Msg("signal delivery failed")
	}
}
