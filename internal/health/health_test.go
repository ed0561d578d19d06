// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/minios/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock"}
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_VerboseRunsCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		wantReady bool
	}{
		{"healthy", StatusHealthy, true},
		{"degraded", StatusDegraded, true},
		{"unhealthy", StatusUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			m.RegisterChecker(&mockChecker{name: "c", status: tt.status})
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestManager_ServeHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "test", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	// liveness stays 200 even with unhealthy components
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "test")
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		status   Status
		wantCode int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			m := NewManager("v1")
			m.RegisterChecker(&mockChecker{name: "test", status: tt.status})

			rec := httptest.NewRecorder()
			m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestEngineChecker(t *testing.T) {
	ready := false
	c := NewEngineChecker(func() bool { return ready })
	assert.Equal(t, "engine", c.Name())
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	ready = true
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestPingChecker(t *testing.T) {
	c := NewPingChecker("cache", func(context.Context) error { return errors.New("connection refused") })
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "connection refused", res.Error)

	c = NewPingChecker("cache", func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewDirChecker("sandbox", dir).Check(context.Background()).Status)

	missing := NewDirChecker("sandbox", filepath.Join(dir, "missing"))
	assert.Equal(t, StatusUnhealthy, missing.Check(context.Background()).Status)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	res := NewDirChecker("sandbox", file).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "not a directory")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "write probe must be removed")
}

func TestLastSaveChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var (
		at     time.Time
		errMsg string
	)
	c := NewLastSaveChecker(func() (time.Time, string) { return at, errMsg }, 10*time.Minute)
	c.now = func() time.Time { return now }
	assert.Equal(t, "state_save", c.Name())

	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	at = now.Add(-time.Minute)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	at = now.Add(-time.Hour)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	errMsg = "disk full"
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "disk full", res.Error)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "minios_root")
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, cfg.DataDir)

	bad := cfg
	bad.API.ListenAddr = "not-an-addr"
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "invalid api listen address")

	bad = cfg
	bad.Apps = []config.AppEntry{{Name: "ghost", Command: []string{"definitely-not-a-real-binary-minios"}}}
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), `app "ghost"`)
}
