// SPDX-License-Identifier: MIT

// Package sandbox implements the confined file system of the mini OS:
// every path is resolved beneath a single root, and deletions go through
// a restorable trash.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/log"
	platformfs "github.com/ManuGH/minios/internal/platform/fs"
)

// TrashDirName is the trash directory below the root.
const TrashDirName = ".trash"

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrExists       = errors.New("already exists")
	ErrIsDir        = errors.New("is a directory")
	ErrNotDir       = errors.New("not a directory")
	ErrInvalidName  = errors.New("invalid name")
)

// reserved names live at the root and are never visible nor writable
// through the sandbox API.
var reserved = map[string]struct{}{
	TrashDirName:        {},
	".cache":            {},
	".state.json":       {},
	".state.db":         {},
	".state.db-wal":     {},
	".state.db-shm":     {},
	".state.db-journal": {},
}

// IsReserved reports whether a root-level name belongs to the system.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// TrashEntry is the persisted index record for one trashed item.
type TrashEntry struct {
	OriginalPath string    `json:"original_path"`
	DeletedAt    time.Time `json:"deleted_at"`
}

// TrashItem is a TrashEntry with its id.
type TrashItem struct {
	ID           string    `json:"id"`
	OriginalPath string    `json:"original_path"`
	DeletedAt    time.Time `json:"deleted_at"`
}

// Option configures an FS.
type Option func(*FS)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *FS) { f.now = now }
}

// WithIDGenerator overrides trash id generation, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(f *FS) { f.newID = gen }
}

// FS is the sandboxed file system. It is safe for concurrent use.
type FS struct {
	root     string
	trashDir string

	mu       sync.Mutex
	index    map[string]TrashEntry
	onChange func()

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// New creates the root and trash directories if needed and returns an FS.
func New(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, TrashDirName), 0o750); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	f := &FS{
		root:     abs,
		trashDir: filepath.Join(abs, TrashDirName),
		index:    make(map[string]TrashEntry),
		now:      time.Now,
		newID:    newTrashID,
		logger:   log.WithComponent("sandbox"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute, symlink-resolved root directory.
func (f *FS) Root() string { return f.root }

// SetChangeHook installs the persistence hook fired after every mutation of
// the trash index. The hook runs without internal locks held.
func (f *FS) SetChangeHook(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *FS) changed() {
	f.mu.Lock()
	hook := f.onChange
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// Resolve confines rel beneath the root and returns the absolute path.
// "" and "." name the root itself. Reserved root entries are denied.
func (f *FS) Resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		rel = "."
	}
	full, err := platformfs.ConfineRelPath(f.root, rel)
	if err != nil {
		if errors.Is(err, platformfs.ErrOutsideRoot) {
			return "", fmt.Errorf("%w: %s", ErrAccessDenied, rel)
		}
		return "", err
	}
	relClean, err := filepath.Rel(f.root, full)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, rel)
	}
	first := strings.SplitN(filepath.ToSlash(relClean), "/", 2)[0]
	if IsReserved(first) {
		return "", fmt.Errorf("%w: %s is reserved", ErrAccessDenied, first)
	}
	return full, nil
}

// entryPath confines the parent of rel and joins the final element without
// following it, so a symlink names the link itself rather than its target.
func (f *FS) entryPath(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, rel)
	}
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == "." {
		return f.root, nil
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, rel)
	}
	parent, err := f.Resolve(path.Dir(clean))
	if err != nil {
		return "", err
	}
	name := path.Base(clean)
	if parent == f.root && IsReserved(name) {
		return "", fmt.Errorf("%w: %s is reserved", ErrAccessDenied, name)
	}
	return filepath.Join(parent, name), nil
}

// confirm re-checks a directory created by MkdirAll, in case a component
// was swapped for a symlink between the check and the mkdir.
func (f *FS) confirm(dir, rel string) error {
	if _, err := platformfs.ConfineAbsPath(f.root, dir); err != nil {
		return fmt.Errorf("%w: %s", ErrAccessDenied, rel)
	}
	return nil
}

// relOf turns a confined absolute path into the slash path stored in the
// trash index.
func (f *FS) relOf(full string) string {
	rel, err := filepath.Rel(f.root, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

// ListDir lists folders and regular files below rel, each sorted ascending.
func (f *FS) ListDir(rel string) (folders, files []string, err error) {
	full, err := f.Resolve(rel)
	if err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, nil, mapErr(err, rel)
	}

	atRoot := full == f.root
	folders, files = []string{}, []string{}
	for _, e := range entries {
		if atRoot && IsReserved(e.Name()) {
			continue
		}
		switch {
		case e.IsDir():
			folders = append(folders, e.Name())
		case e.Type().IsRegular():
			files = append(files, e.Name())
		}
	}
	sort.Strings(folders)
	sort.Strings(files)
	return folders, files, nil
}

// CreateFile creates or overwrites a file atomically. Missing parent
// folders are created.
func (f *FS) CreateFile(rel, content string) error {
	full, err := f.Resolve(rel)
	if err != nil {
		return err
	}
	if full == f.root {
		return fmt.Errorf("%w: %s", ErrIsDir, rel)
	}
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDir, rel)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	if err := f.confirm(filepath.Dir(full), rel); err != nil {
		return err
	}
	if err := renameio.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	f.logger.Debug().Str(log.FieldEvent, "sandbox.file_written").Str(log.FieldPath, f.relOf(full)).Msg("file written")
	return nil
}

// ReadFile returns the file content.
func (f *FS) ReadFile(rel string) (string, error) {
	full, err := f.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", mapErr(err, rel)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrIsDir, rel)
	}
	// #nosec G304 -- path confined to the sandbox root
	data, err := os.ReadFile(full)
	if err != nil {
		return "", mapErr(err, rel)
	}
	return string(data), nil
}

// CreateFolder creates rel and its parents. It is idempotent.
func (f *FS) CreateFolder(rel string) error {
	full, err := f.Resolve(rel)
	if err != nil {
		return err
	}
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrExists, rel)
	}
	if err := os.MkdirAll(full, 0o750); err != nil {
		return mapErr(err, rel)
	}
	return f.confirm(full, rel)
}

// Rename renames rel to newName within the same parent folder.
func (f *FS) Rename(rel, newName string) (string, error) {
	if err := validName(newName); err != nil {
		return "", err
	}
	src, err := f.existing(rel)
	if err != nil {
		return "", err
	}
	dst, err := f.entryPath(f.relOf(filepath.Join(filepath.Dir(src), newName)))
	if err != nil {
		return "", err
	}
	return f.moveTo(src, dst)
}

// Move moves rel into destFolder, keeping its base name.
func (f *FS) Move(rel, destFolder string) (string, error) {
	src, err := f.existing(rel)
	if err != nil {
		return "", err
	}
	destDir, err := f.Resolve(destFolder)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(destDir)
	if err != nil {
		return "", mapErr(err, destFolder)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDir, destFolder)
	}
	if destDir == src || strings.HasPrefix(destDir, src+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: cannot move %s into itself", ErrAccessDenied, rel)
	}
	return f.moveTo(src, filepath.Join(destDir, filepath.Base(src)))
}

func (f *FS) moveTo(src, dst string) (string, error) {
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, f.relOf(dst))
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move %s: %w", f.relOf(src), err)
	}
	return f.relOf(dst), nil
}

// existing locates the entry named by rel, requires it to exist and refuses
// the root. Symlinks are not followed.
func (f *FS) existing(rel string) (string, error) {
	full, err := f.entryPath(rel)
	if err != nil {
		return "", err
	}
	if full == f.root {
		return "", fmt.Errorf("%w: the root cannot be modified", ErrAccessDenied)
	}
	if _, err := os.Lstat(full); err != nil {
		return "", mapErr(err, rel)
	}
	return full, nil
}

// Delete moves rel into the trash and records it in the index.
func (f *FS) Delete(rel string) (TrashItem, error) {
	full, err := f.existing(rel)
	if err != nil {
		return TrashItem{}, err
	}

	id := f.newID()
	entry := TrashEntry{OriginalPath: f.relOf(full), DeletedAt: f.now().UTC()}

	f.mu.Lock()
	if err := os.Rename(full, filepath.Join(f.trashDir, id)); err != nil {
		f.mu.Unlock()
		return TrashItem{}, fmt.Errorf("move to trash: %w", err)
	}
	f.index[id] = entry
	f.mu.Unlock()

	f.logger.Info().
		Str(log.FieldEvent, "sandbox.trashed").
		Str(log.FieldPath, entry.OriginalPath).
		Str(log.FieldTrashID, id).
		Msg("item moved to trash")
	f.changed()
	return TrashItem{ID: id, OriginalPath: entry.OriginalPath, DeletedAt: entry.DeletedAt}, nil
}

// TrashItems returns the index, most recently deleted first.
func (f *FS) TrashItems() []TrashItem {
	f.mu.Lock()
	items := make([]TrashItem, 0, len(f.index))
	for id, e := range f.index {
		items = append(items, TrashItem{ID: id, OriginalPath: e.OriginalPath, DeletedAt: e.DeletedAt})
	}
	f.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].DeletedAt.Equal(items[j].DeletedAt) {
			return items[i].DeletedAt.After(items[j].DeletedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// FindTrashByName returns the most recently deleted item whose original
// base name equals base.
func (f *FS) FindTrashByName(base string) (TrashItem, error) {
	base = path.Base(filepath.ToSlash(strings.TrimSpace(base)))
	for _, it := range f.TrashItems() {
		if path.Base(it.OriginalPath) == base {
			return it, nil
		}
	}
	return TrashItem{}, fmt.Errorf("%w: %s in trash", ErrNotFound, base)
}

// Restore moves a trashed item back to its original path. When the original
// path is occupied the item stays in the trash and ErrExists is returned.
func (f *FS) Restore(id string) (TrashItem, error) {
	f.mu.Lock()
	entry, ok := f.index[id]
	f.mu.Unlock()
	if !ok {
		return TrashItem{}, fmt.Errorf("%w: trash item %s", ErrNotFound, id)
	}

	dst, err := f.entryPath(entry.OriginalPath)
	if err != nil {
		return TrashItem{}, err
	}
	payload := filepath.Join(f.trashDir, id)

	f.mu.Lock()
	if _, err := os.Lstat(payload); err != nil {
		// payload vanished; the index entry is stale.
		delete(f.index, id)
		f.mu.Unlock()
		f.changed()
		return TrashItem{}, fmt.Errorf("%w: trash payload %s", ErrNotFound, id)
	}
	if _, err := os.Lstat(dst); err == nil {
		f.mu.Unlock()
		return TrashItem{}, fmt.Errorf("%w: %s", ErrExists, entry.OriginalPath)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		f.mu.Unlock()
		return TrashItem{}, fmt.Errorf("recreate parent: %w", err)
	}
	if err := f.confirm(filepath.Dir(dst), entry.OriginalPath); err != nil {
		f.mu.Unlock()
		return TrashItem{}, err
	}
	if err := os.Rename(payload, dst); err != nil {
		f.mu.Unlock()
		return TrashItem{}, fmt.Errorf("restore %s: %w", entry.OriginalPath, err)
	}
	delete(f.index, id)
	f.mu.Unlock()

	f.logger.Info().
		Str(log.FieldEvent, "sandbox.restored").
		Str(log.FieldPath, entry.OriginalPath).
		Str(log.FieldTrashID, id).
		Msg("item restored from trash")
	f.changed()
	return TrashItem{ID: id, OriginalPath: entry.OriginalPath, DeletedAt: entry.DeletedAt}, nil
}

// EmptyTrash permanently removes every trashed payload and clears the index.
// Individual failures are logged and do not stop the sweep.
func (f *FS) EmptyTrash() (int, error) {
	f.mu.Lock()
	entries, err := os.ReadDir(f.trashDir)
	if err != nil {
		f.mu.Unlock()
		return 0, fmt.Errorf("read trash: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.trashDir, e.Name())); err != nil {
			f.logger.Error().Err(err).
				Str(log.FieldEvent, "sandbox.trash_remove_failed").
				Str(log.FieldTrashID, e.Name()).
				Msg("failed to remove trashed item")
			continue
		}
		removed++
	}
	f.index = make(map[string]TrashEntry)
	f.mu.Unlock()

	f.logger.Info().Str(log.FieldEvent, "sandbox.trash_emptied").Int("removed", removed).Msg("trash emptied")
	f.changed()
	return removed, nil
}

// PurgeOlderThan permanently removes entries deleted more than age ago.
func (f *FS) PurgeOlderThan(age time.Duration) (int, error) {
	cutoff := f.now().Add(-age)

	f.mu.Lock()
	var errs []error
	purged := 0
	for id, e := range f.index {
		if !e.DeletedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(f.trashDir, id)); err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", id, err))
			continue
		}
		delete(f.index, id)
		purged++
	}
	f.mu.Unlock()

	if purged > 0 {
		f.logger.Info().Str(log.FieldEvent, "sandbox.trash_purged").Int("removed", purged).Msg("expired trash purged")
		f.changed()
	}
	return purged, errors.Join(errs...)
}

// TrashIndex returns a copy of the index for persistence.
func (f *FS) TrashIndex() map[string]TrashEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]TrashEntry, len(f.index))
	for k, v := range f.index {
		out[k] = v
	}
	return out
}

// LoadTrashIndex replaces the index with a persisted copy. Entries whose
// payload no longer exists are dropped.
func (f *FS) LoadTrashIndex(idx map[string]TrashEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = make(map[string]TrashEntry, len(idx))
	for id, e := range idx {
		if _, err := os.Lstat(filepath.Join(f.trashDir, id)); err != nil {
			f.logger.Warn().
				Str(log.FieldEvent, "sandbox.trash_stale").
				Str(log.FieldTrashID, id).
				Msg("dropping trash entry without payload")
			continue
		}
		f.index[id] = e
	}
}

func validName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q must be a single path element", ErrInvalidName, name)
	}
	return nil
}

func mapErr(err error, rel string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, rel)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrAccessDenied, rel)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %s", ErrExists, rel)
	}
	if errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("%w: %s", ErrNotDir, rel)
	}
	return err
}

func newTrashID() string {
	return uuid.NewString()
}
