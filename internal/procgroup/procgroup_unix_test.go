// SPDX-License-Identifier: MIT

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan struct{}) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited
}

func TestKillGroup_TerminatesWholeGroup(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 100 & sleep 100")
	time.Sleep(50 * time.Millisecond)

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid, "PID should be PGID leader")

	require.NoError(t, KillGroup(cmd, exited, 500*time.Millisecond, time.Second))

	// Give the kernel a moment to reap the background child.
	assert.Eventually(t, func() bool {
		return syscall.Kill(-pgid, syscall.Signal(0)) == syscall.ESRCH
	}, 2*time.Second, 20*time.Millisecond, "process group should be gone")
}

func TestKillGroup_EscalatesToSIGKILL(t *testing.T) {
	cmd, exited := startGroup(t, "trap '' TERM; sleep 100")
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, KillGroup(cmd, exited, 100*time.Millisecond, 2*time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled())
}

func TestKillGroup_AlreadyExited(t *testing.T) {
	cmd, exited := startGroup(t, "exit 0")
	<-exited
	assert.NoError(t, KillGroup(cmd, exited, 10*time.Millisecond, 10*time.Millisecond))
	assert.NoError(t, KillGroup(nil, nil, 0, 0))
}
