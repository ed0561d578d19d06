// SPDX-License-Identifier: MIT

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/minios/internal/persistence/sqlite"
)

const schemaEngineState = `CREATE TABLE IF NOT EXISTS engine_state (
	section    TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// section names
const (
	secVariables  = "variables"
	secTrashIndex = "trash_index"
	secUsers      = "users"
	secCRUD       = "crud"
	secMeta       = "meta"
)

type meta struct {
	SavedAt time.Time `json:"saved_at"`
}

// SQLiteStore keeps each snapshot section in one row.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLiteStore opens (and migrates) the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	cfg := sqlite.DefaultConfig()
	cfg.MaxOpenConns = 1
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schemaEngineState); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Load assembles the snapshot from its sections.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT section, body FROM engine_state`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query state: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	found := false
	for rows.Next() {
		var section, body string
		if err := rows.Scan(&section, &body); err != nil {
			return Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		found = true

		var target any
		switch section {
		case secVariables:
			target = &snap.Variables
		case secTrashIndex:
			target = &snap.TrashIndex
		case secUsers:
			target = &snap.Users
		case secCRUD:
			target = &snap.CRUD
		case secMeta:
			var m meta
			if err := json.Unmarshal([]byte(body), &m); err != nil {
				return Snapshot{}, fmt.Errorf("%w: decode %s: %v", ErrNoState, section, err)
			}
			snap.SavedAt = m.SavedAt
			continue
		default:
			continue
		}
		if err := json.Unmarshal([]byte(body), target); err != nil {
			return Snapshot{}, fmt.Errorf("%w: decode %s: %v", ErrNoState, section, err)
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	if !found {
		return Snapshot{}, ErrNoState
	}
	return snap, nil
}

// Save writes every section in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	sections := map[string]any{
		secVariables:  snap.Variables,
		secTrashIndex: snap.TrashIndex,
		secUsers:      snap.Users,
		secCRUD:       snap.CRUD,
		secMeta:       meta{SavedAt: snap.SavedAt},
	}
	encoded := make(map[string]string, len(sections))
	for name, v := range sections {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		encoded[name] = string(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for name, body := range encoded {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO engine_state (section, body, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(section) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			name, body, now); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
