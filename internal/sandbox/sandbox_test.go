// SPDX-License-Identifier: MIT

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFS(t *testing.T) (*FS, *fakeClock, *int32) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	var seq int32
	fs, err := New(t.TempDir(),
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", atomic.AddInt32(&seq, 1)) }),
	)
	require.NoError(t, err)

	var hooks int32
	fs.SetChangeHook(func() { atomic.AddInt32(&hooks, 1) })
	return fs, clock, &hooks
}

func TestNew_CreatesRootAndTrash(t *testing.T) {
	root := filepath.Join(t.TempDir(), "minios_root")
	fs, err := New(root)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(fs.Root(), TrashDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolve_Confinement(t *testing.T) {
	fs, _, _ := newTestFS(t)

	for _, bad := range []string{"../etc/passwd", "/etc/passwd", `a\b`, ".trash", ".trash/x", ".state.json", ".cache/k"} {
		_, err := fs.Resolve(bad)
		assert.ErrorIs(t, err, ErrAccessDenied, bad)
	}

	got, err := fs.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, fs.Root(), got)

	got, err = fs.Resolve("docs/../notes.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.Root(), "notes.txt"), got)
}

func TestResolve_SymlinkEscapeDenied(t *testing.T) {
	fs, _, _ := newTestFS(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(fs.Root(), "escape")))

	_, err := fs.Resolve("escape/secret.txt")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestCreate_SymlinkedAncestorDenied(t *testing.T) {
	fs, _, _ := newTestFS(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(fs.Root(), "link")))

	err := fs.CreateFile("link/newdir/notes.txt", "x")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, statErr := os.Stat(filepath.Join(outside, "newdir"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be created outside the root")

	err = fs.CreateFolder("link/a/b")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, statErr = os.Stat(filepath.Join(outside, "a"))
	assert.True(t, os.IsNotExist(statErr))

	// a link that stays inside the root is still usable
	require.NoError(t, fs.CreateFolder("data"))
	require.NoError(t, os.Symlink(filepath.Join(fs.Root(), "data"), filepath.Join(fs.Root(), "alias")))
	require.NoError(t, fs.CreateFile("alias/deep/x.txt", "in"))
	got, err := fs.ReadFile("data/deep/x.txt")
	require.NoError(t, err)
	assert.Equal(t, "in", got)
}

func TestDelete_SymlinkTrashesLinkItself(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.CreateFile("data/real.txt", "payload"))
	require.NoError(t, os.Symlink(filepath.Join(fs.Root(), "data", "real.txt"), filepath.Join(fs.Root(), "alias.txt")))

	item, err := fs.Delete("alias.txt")
	require.NoError(t, err)
	assert.Equal(t, "alias.txt", item.OriginalPath)

	got, err := fs.ReadFile("data/real.txt")
	require.NoError(t, err, "the link target must stay in place")
	assert.Equal(t, "payload", got)
	_, err = os.Lstat(filepath.Join(fs.Root(), "alias.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = fs.Restore(item.ID)
	require.NoError(t, err)
	info, err := os.Lstat(filepath.Join(fs.Root(), "alias.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode()&os.ModeSymlink)
}

func TestDelete_EscapingSymlinkRemovesOnlyLink(t *testing.T) {
	fs, _, _ := newTestFS(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(fs.Root(), "escape")))

	_, err := fs.Delete("escape")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outside, "secret.txt"))
	assert.NoError(t, err)
}

func TestRenameAndMove_SymlinkedAncestorDenied(t *testing.T) {
	fs, _, _ := newTestFS(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "victim.txt"), []byte("v"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(fs.Root(), "link")))
	require.NoError(t, fs.CreateFile("a.txt", "a"))

	_, err := fs.Rename("link/victim.txt", "renamed.txt")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = fs.Move("a.txt", "link")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = fs.Move("a.txt", "link/sub")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = os.Stat(filepath.Join(outside, "victim.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outside, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestListDir_SortedAndHidesSystemEntries(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.CreateFile("b.txt", "b"))
	require.NoError(t, fs.CreateFile("a.txt", "a"))
	require.NoError(t, fs.CreateFolder("zeta"))
	require.NoError(t, fs.CreateFolder("alpha"))
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), ".state.json"), []byte("{}"), 0o600))

	folders, files, err := fs.ListDir(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, folders)
	assert.Equal(t, []string{"a.txt", "b.txt"}, files)

	_, _, err = fs.ListDir("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = fs.ListDir("a.txt")
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestCreateAndReadFile(t *testing.T) {
	fs, _, _ := newTestFS(t)

	require.NoError(t, fs.CreateFile("docs/readme.txt", "hello"))
	got, err := fs.ReadFile("docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	require.NoError(t, fs.CreateFile("docs/readme.txt", "bye"))
	got, err = fs.ReadFile("docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "bye", got)

	_, err = fs.ReadFile("docs")
	assert.ErrorIs(t, err, ErrIsDir)
	_, err = fs.ReadFile("nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fs.CreateFile("docs", "x"), ErrIsDir)
}

func TestCreateFolder_Idempotent(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.CreateFolder("a/b/c"))
	require.NoError(t, fs.CreateFolder("a/b/c"))

	require.NoError(t, fs.CreateFile("file", "x"))
	assert.ErrorIs(t, fs.CreateFolder("file"), ErrExists)
}

func TestRenameAndMove(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.CreateFile("a.txt", "a"))
	require.NoError(t, fs.CreateFile("b.txt", "b"))
	require.NoError(t, fs.CreateFolder("dir"))

	newPath, err := fs.Rename("a.txt", "c.txt")
	require.NoError(t, err)
	assert.Equal(t, "c.txt", newPath)

	_, err = fs.Rename("c.txt", "b.txt")
	assert.ErrorIs(t, err, ErrExists)
	_, err = fs.Rename("c.txt", "x/y")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = fs.Rename("c.txt", ".trash")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = fs.Rename("missing", "z")
	assert.ErrorIs(t, err, ErrNotFound)

	moved, err := fs.Move("c.txt", "dir")
	require.NoError(t, err)
	assert.Equal(t, "dir/c.txt", moved)

	_, err = fs.Move("b.txt", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = fs.Move("dir", "dir")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = fs.Move("dir", "b.txt")
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestDeleteAndRestore(t *testing.T) {
	fs, clock, hooks := newTestFS(t)
	require.NoError(t, fs.CreateFile("docs/note.txt", "n"))

	item, err := fs.Delete("docs/note.txt")
	require.NoError(t, err)
	assert.Equal(t, "id-1", item.ID)
	assert.Equal(t, "docs/note.txt", item.OriginalPath)
	assert.Equal(t, clock.Now(), item.DeletedAt)
	assert.Equal(t, int32(1), atomic.LoadInt32(hooks))

	_, err = os.Stat(filepath.Join(fs.Root(), TrashDirName, "id-1"))
	require.NoError(t, err)

	// parent removed meanwhile: restore recreates it
	require.NoError(t, os.RemoveAll(filepath.Join(fs.Root(), "docs")))

	restored, err := fs.Restore("id-1")
	require.NoError(t, err)
	assert.Equal(t, "docs/note.txt", restored.OriginalPath)
	got, err := fs.ReadFile("docs/note.txt")
	require.NoError(t, err)
	assert.Equal(t, "n", got)
	assert.Empty(t, fs.TrashItems())
	assert.Equal(t, int32(2), atomic.LoadInt32(hooks))

	_, err = fs.Restore("id-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_Guards(t *testing.T) {
	fs, _, _ := newTestFS(t)

	_, err := fs.Delete(".")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = fs.Delete(".trash")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = fs.Delete("ghost.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestore_ConflictKeepsItemInTrash(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.CreateFile("a.txt", "old"))
	item, err := fs.Delete("a.txt")
	require.NoError(t, err)
	require.NoError(t, fs.CreateFile("a.txt", "new"))

	_, err = fs.Restore(item.ID)
	assert.ErrorIs(t, err, ErrExists)
	require.Len(t, fs.TrashItems(), 1)

	got, err := fs.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestTrashItems_NewestFirstAndFindByName(t *testing.T) {
	fs, clock, _ := newTestFS(t)

	require.NoError(t, fs.CreateFile("a/report.txt", "1"))
	_, err := fs.Delete("a/report.txt")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, fs.CreateFile("b/report.txt", "2"))
	_, err = fs.Delete("b/report.txt")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, fs.CreateFile("other.txt", "3"))
	_, err = fs.Delete("other.txt")
	require.NoError(t, err)

	items := fs.TrashItems()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"id-3", "id-2", "id-1"}, []string{items[0].ID, items[1].ID, items[2].ID})

	found, err := fs.FindTrashByName("report.txt")
	require.NoError(t, err)
	assert.Equal(t, "id-2", found.ID)
	assert.Equal(t, "b/report.txt", found.OriginalPath)

	_, err = fs.FindTrashByName("absent.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmptyTrash(t *testing.T) {
	fs, _, hooks := newTestFS(t)
	require.NoError(t, fs.CreateFile("a.txt", "a"))
	require.NoError(t, fs.CreateFolder("d/e"))
	_, err := fs.Delete("a.txt")
	require.NoError(t, err)
	_, err = fs.Delete("d")
	require.NoError(t, err)

	removed, err := fs.EmptyTrash()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, fs.TrashItems())
	assert.Equal(t, int32(3), atomic.LoadInt32(hooks))

	entries, err := os.ReadDir(filepath.Join(fs.Root(), TrashDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPurgeOlderThan(t *testing.T) {
	fs, clock, _ := newTestFS(t)
	require.NoError(t, fs.CreateFile("old.txt", "o"))
	_, err := fs.Delete("old.txt")
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	require.NoError(t, fs.CreateFile("new.txt", "n"))
	_, err = fs.Delete("new.txt")
	require.NoError(t, err)

	purged, err := fs.PurgeOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	items := fs.TrashItems()
	require.Len(t, items, 1)
	assert.Equal(t, "new.txt", items[0].OriginalPath)
}

func TestLoadTrashIndex_DropsStaleEntries(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.CreateFile("keep.txt", "k"))
	item, err := fs.Delete("keep.txt")
	require.NoError(t, err)

	idx := fs.TrashIndex()
	idx["ghost"] = TrashEntry{OriginalPath: "ghost.txt", DeletedAt: time.Now()}

	fs.LoadTrashIndex(idx)
	got := fs.TrashIndex()
	assert.Len(t, got, 1)
	assert.Contains(t, got, item.ID)
}
