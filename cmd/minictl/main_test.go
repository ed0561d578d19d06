// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuGH/minios/internal/engine"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// ctl runs minictl against dir with a cheap password hash.
func ctl(t *testing.T, dir string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--data-dir", dir, "--bcrypt-cost", strconv.Itoa(bcrypt.MinCost)}, args...)
	code := run(full, &out, &errOut, func(int) {})
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestExecPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	r := ctl(t, dir, "exec", "set", "answer", "42")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "answer = 42\n", r.stdout)

	r = ctl(t, dir, "exec", "get", "answer")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "42\n", r.stdout)
}

func TestExecFailureExitsNonZero(t *testing.T) {
	r := ctl(t, t.TempDir(), "exec", "cat", "missing.txt")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "Error:")
}

func TestTrashLifecycle(t *testing.T) {
	dir := t.TempDir()

	require.Equal(t, 0, ctl(t, dir, "exec", "write", "notes.txt", "hello").code)
	require.Equal(t, 0, ctl(t, dir, "exec", "trash", "notes.txt").code)

	r := ctl(t, dir, "trash", "list")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "ORIGINAL PATH")
	assert.Contains(t, r.stdout, "notes.txt")

	r = ctl(t, dir, "trash", "restore", "notes.txt")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Restored notes.txt\n", r.stdout)

	r = ctl(t, dir, "exec", "cat", "notes.txt")
	require.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "hello")

	r = ctl(t, dir, "trash", "list", "--json")
	require.Equal(t, 0, r.code)
	assert.Equal(t, "[]", strings.TrimSpace(r.stdout))

	r = ctl(t, dir, "trash", "restore", "nothing-here")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "not found")
}

func TestTrashEmpty(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, ctl(t, dir, "exec", "write", "a.txt", "x").code)
	require.Equal(t, 0, ctl(t, dir, "exec", "trash", "a.txt").code)

	r := ctl(t, dir, "trash", "empty")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Removed 1 item(s).\n", r.stdout)

	r = ctl(t, dir, "trash", "list")
	assert.Equal(t, "Trash is empty.\n", r.stdout)
}

func TestUserAdd(t *testing.T) {
	dir := t.TempDir()

	r := ctl(t, dir, "user", "add", "Ada@Example.com", "--password", "pw")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Registered ada@example.com\n", r.stdout)

	r = ctl(t, dir, "user", "add", "ada@example.com", "--password", "again")
	assert.Equal(t, 1, r.code)

	r = ctl(t, dir, "user", "list")
	require.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "ada@example.com")
	assert.Contains(t, r.stdout, "admin@ptpy.os")
}

func TestStateShow(t *testing.T) {
	dir := t.TempDir()
	r := ctl(t, dir, "state", "show")
	require.Equal(t, 0, r.code, r.stderr)

	var info engine.Info
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &info))
	assert.Equal(t, "1.5", info.Variables["version"])
	assert.Equal(t, "json", info.Backend)
	assert.NotEmpty(t, info.Modules)
}

func TestUnknownCommand(t *testing.T) {
	r := ctl(t, t.TempDir(), "reboot")
	assert.Equal(t, 2, r.code)
}
