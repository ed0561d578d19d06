// SPDX-License-Identifier: MIT

// Package state persists engine snapshots. The default backend is a single
// JSON file replaced atomically; an SQLite backend is available for hosts
// that prefer a transactional store.
package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/minios/internal/modules"
	"github.com/ManuGH/minios/internal/sandbox"
)

// File names below the sandbox root.
const (
	JSONFileName   = ".state.json"
	SQLiteFileName = ".state.db"
)

// ErrNoState is returned by Load when nothing usable has been saved yet.
var ErrNoState = errors.New("no saved state")

// Snapshot is the complete persisted engine state.
type Snapshot struct {
	Variables  map[string]any                `json:"variables"`
	TrashIndex map[string]sandbox.TrashEntry `json:"trash_index"`
	Users      []modules.User                `json:"users"`
	CRUD       map[string]modules.CRUDData   `json:"crud"`
	SavedAt    time.Time                     `json:"saved_at"`
}

// Store loads and saves snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Open returns the store for backend rooted at dir.
func Open(ctx context.Context, backend, dir string) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(filepath.Join(dir, JSONFileName)), nil
	case "sqlite":
		return OpenSQLiteStore(ctx, filepath.Join(dir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
