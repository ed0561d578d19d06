// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Defaults()
	cfg.DataDir = filepath.Join(dir, "root")
	cfg.Cache.Dir = filepath.Join(dir, "root", ".cache")
	cfg.Scheduler.TrashRetention = 72 * time.Hour
	cfg.Apps = []AppEntry{{Name: "Clock", Icon: "⏰", Command: []string{"date"}}}

	require.NoError(t, NewManager(path).Save(cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_SaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Defaults()
	cfg.State.Backend = "postgres"

	require.Error(t, NewManager(path).Save(cfg))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.API.Token = "secret"
	cfg.Cache.Redis.Password = "pw"

	r := Redacted(cfg)
	assert.Equal(t, "***", r.API.Token)
	assert.Equal(t, "***", r.Admin.Password)
	assert.Equal(t, "***", r.Cache.Redis.Password)
	assert.Equal(t, "secret", cfg.API.Token, "original untouched")
}
