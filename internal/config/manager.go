// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Manager handles configuration persistence.
type Manager struct {
	configPath string
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) *Manager {
	return &Manager{configPath: configPath}
}

// Path returns the managed file path.
func (m *Manager) Path() string {
	return m.configPath
}

// Save writes the configuration to disk, replacing the file atomically.
// Readers never observe a half-written file.
func (m *Manager) Save(cfg AppConfig) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0o750); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(m.configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML. Secrets are written as-is; callers that
// display config use Redacted first.
func Marshal(cfg AppConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Redacted returns a copy with secrets masked for display.
func Redacted(cfg AppConfig) AppConfig {
	out := cfg
	if out.API.Token != "" {
		out.API.Token = "***"
	}
	if out.Admin.Password != "" {
		out.Admin.Password = "***"
	}
	if out.Cache.Redis.Password != "" {
		out.Cache.Redis.Password = "***"
	}
	out.Apps = append([]AppEntry(nil), cfg.Apps...)
	out.API.AllowedOrigins = append([]string(nil), cfg.API.AllowedOrigins...)
	return out
}
