// SPDX-License-Identifier: MIT

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/minios/internal/log"
)

// JSONStore keeps the snapshot in one indented JSON file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore returns a store writing to path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the state file location.
func (s *JSONStore) Path() string { return s.path }

// Load reads the snapshot. A missing or corrupt file yields ErrNoState.
func (s *JSONStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, ErrNoState
		}
		return Snapshot{}, fmt.Errorf("read state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger := log.WithComponent("state")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "state.corrupt").
			Str(log.FieldPath, s.path).
			Msg("state file is corrupt, starting from defaults")
		return Snapshot{}, fmt.Errorf("%w: decode: %v", ErrNoState, err)
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (s *JSONStore) Save(_ context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }
