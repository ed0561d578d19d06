// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EnablesWAL(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	mode, err := JournalMode(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"), Config{MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	stmt := `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`
	require.NoError(t, Migrate(ctx, db, stmt))
	require.NoError(t, Migrate(ctx, db, stmt))

	_, err = db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('a', 'b')`)
	require.NoError(t, err)

	err = Migrate(ctx, db, `CREATE TABLE broken (`)
	assert.Error(t, err)
}

func TestVerifyIntegrity_HealthyDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, `CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, data TEXT)`))
	for i := 0; i < 50; i++ {
		_, err := db.ExecContext(ctx, `INSERT INTO t (data) VALUES (?)`, "payload")
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	for _, mode := range []string{"quick", "full"} {
		issues, err := VerifyIntegrity(ctx, path, mode)
		require.NoError(t, err)
		assert.Nil(t, issues, mode)
	}
}
