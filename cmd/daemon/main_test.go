// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/state"
)

// captureOutput redirects the CLI writers for the duration of the test.
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	good := writeConfig(t, "dataDir: "+t.TempDir()+"\nlogLevel: debug\n")
	bad := writeConfig(t, "dataDir: "+t.TempDir()+"\nbogusKey: 1\n")

	out, _ := captureOutput(t)
	assert.Equal(t, 0, runConfigCLI([]string{"validate", "-f", good}))
	assert.Contains(t, out.String(), "is valid")

	_, errOut := captureOutput(t)
	assert.Equal(t, 1, runConfigCLI([]string{"validate", "--file", bad}))
	assert.Contains(t, errOut.String(), "Configuration error")
}

func TestConfigDumpRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "dataDir: "+t.TempDir()+"\napi:\n  token: s3cret\n")

	out, _ := captureOutput(t)
	require.Equal(t, 0, runConfigCLI([]string{"dump", "-f", path, "--format", "json"}))

	var cfg config.AppConfig
	require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, "***", cfg.API.Token)
	assert.Equal(t, "***", cfg.Admin.Password)
	assert.NotContains(t, out.String(), "s3cret")
}

func TestConfigDumpRejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "dataDir: "+t.TempDir()+"\n")
	captureOutput(t)
	assert.Equal(t, 2, runConfigCLI([]string{"dump", "-f", path, "--format", "toml"}))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	captureOutput(t)

	require.Equal(t, 0, runConfigCLI([]string{"init", "-f", path}))
	assert.Equal(t, 1, runConfigCLI([]string{"init", "-f", path}), "refuses to overwrite")
	assert.Equal(t, 0, runConfigCLI([]string{"init", "-f", path, "--force"}))

	assert.Equal(t, 0, runConfigCLI([]string{"validate", "-f", path}))
}

func TestConfigUnknownSubcommand(t *testing.T) {
	captureOutput(t)
	assert.Equal(t, 2, runConfigCLI([]string{"explode"}))
	assert.Equal(t, 0, runConfigCLI(nil))
}

func TestHealthcheck(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" && !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	_, err = strconv.Atoi(port)
	require.NoError(t, err)

	args := func(mode string) []string {
		return []string{"--host", host, "--port", port, "--mode", mode}
	}

	captureOutput(t)
	assert.Equal(t, 0, runHealthcheckCLI(args("ready")))
	assert.Equal(t, 0, runHealthcheckCLI(args("live")))

	ready = false
	assert.Equal(t, 1, runHealthcheckCLI(args("ready")))
	assert.Equal(t, 0, runHealthcheckCLI(args("live")))
	assert.Equal(t, 2, runHealthcheckCLI(args("sideways")))
}

func TestStorageVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, state.NewJSONStore(filepath.Join(dir, state.JSONFileName)).Save(ctx, state.Snapshot{
		Variables: map[string]any{"x": 1.0},
	}))
	db, err := state.OpenSQLiteStore(ctx, filepath.Join(dir, state.SQLiteFileName))
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, state.Snapshot{}))
	require.NoError(t, db.Close())

	out, _ := captureOutput(t)
	assert.Equal(t, 0, runStorageCLI([]string{"verify", "--data-dir", dir}))
	assert.Contains(t, out.String(), state.JSONFileName+": ok")
	assert.Contains(t, out.String(), state.SQLiteFileName+": ok")

	assert.Equal(t, 0, runStorageCLI([]string{"verify", "--path", filepath.Join(dir, state.SQLiteFileName), "--mode", "full"}))
}

func TestStorageVerifyDetectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), state.JSONFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, errOut := captureOutput(t)
	assert.Equal(t, 1, runStorageCLI([]string{"verify", "--path", path}))
	assert.Contains(t, errOut.String(), "CORRUPTION DETECTED")
}

func TestStorageVerifyUsage(t *testing.T) {
	captureOutput(t)
	assert.Equal(t, 2, runStorageCLI([]string{"verify"}))
	assert.Equal(t, 2, runStorageCLI([]string{"verify", "--path", "x", "--mode", "slow"}))
	assert.Equal(t, 2, runStorageCLI([]string{"verify", "--data-dir", t.TempDir()}))
	assert.Equal(t, 1, runStorageCLI([]string{"verify", "--path", filepath.Join(t.TempDir(), "missing.db")}))
	assert.Equal(t, 2, runStorageCLI([]string{"compact"}))
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvPrefix+"DATA_DIR", dir)
	assert.Equal(t, "", resolveConfigPath(""))
	assert.Equal(t, "/etc/x.yaml", resolveConfigPath(" /etc/x.yaml "))

	auto := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(auto, []byte("{}\n"), 0o600))
	assert.Equal(t, auto, resolveConfigPath(""))
}
