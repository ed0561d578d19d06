// SPDX-License-Identifier: MIT

// Package fs confines user-supplied paths to a root directory.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned (wrapped) whenever a path would resolve outside its root.
var ErrOutsideRoot = errors.New("path escapes root")

// ConfineRelPath ensures that joining root and relTarget results in a path that is physically
// underneath the resolved path of root. It protects against symlink traversal and backslash bypass.
// The target MUST be relative.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("%w: path contains backslash: %s", ErrOutsideRoot, relTarget)
	}

	cleanRel := filepath.Clean(relTarget)
	if filepath.IsAbs(cleanRel) || strings.HasPrefix(cleanRel, "/") {
		return "", fmt.Errorf("%w: target path must be relative: %s", ErrOutsideRoot, relTarget)
	}

	// Segment-based so that names like "..notes" stay legal.
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal attempt: %s", ErrOutsideRoot, relTarget)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}

	return resolveAndCheck(realRoot, filepath.Join(realRoot, cleanRel))
}

// ConfineAbsPath ensures that targetAbs is physically underneath the resolved path of root.
// The target must be absolute.
func ConfineAbsPath(rootAbs, targetAbs string) (string, error) {
	if strings.Contains(targetAbs, "\\") {
		return "", fmt.Errorf("%w: path contains backslash: %s", ErrOutsideRoot, targetAbs)
	}
	if !filepath.IsAbs(targetAbs) {
		return "", fmt.Errorf("target path must be absolute: %s", targetAbs)
	}

	realRoot, err := resolveRoot(rootAbs)
	if err != nil {
		return "", err
	}

	return resolveAndCheck(realRoot, filepath.Clean(targetAbs))
}

// RelToRoot converts a confined absolute path back into a slash separated
// path relative to root ("." for the root itself).
func RelToRoot(root, confined string) (string, error) {
	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(realRoot, confined)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func resolveRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}
	return realRoot, nil
}

// resolveAndCheck resolves fullPath symlinks and ensures it is within realRoot.
// For a path that does not exist yet, the deepest existing ancestor is
// resolved and the missing components are appended to it.
func resolveAndCheck(realRoot, fullPath string) (string, error) {
	existing := fullPath
	var missing []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", fmt.Errorf("%w: no existing ancestor: %s", ErrOutsideRoot, fullPath)
		}
		missing = append(missing, filepath.Base(existing))
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		// Dangling or unreadable link: fail closed.
		return "", fmt.Errorf("%w: failed to resolve path: %v", ErrOutsideRoot, err)
	}
	realPath := resolved
	for i := len(missing) - 1; i >= 0; i-- {
		realPath = filepath.Join(realPath, missing[i])
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: via symlinks: %s", ErrOutsideRoot, realPath)
	}

	return realPath, nil
}

// IsRegularFile checks if path exists and is a regular file (not directory, device, etc).
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
