// SPDX-License-Identifier: MIT

package modules

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestRegistry(t *testing.T) (*Registry, *int32) {
	t.Helper()
	r := NewRegistry(WithBcryptCost(bcrypt.MinCost))
	var fired int32
	r.SetChangeHook(func() { atomic.AddInt32(&fired, 1) })
	return r, &fired
}

func TestLogin_RegisterAndLogin(t *testing.T) {
	r, fired := newTestRegistry(t)
	login := r.Login()

	require.NoError(t, login.Register("Alice@Example.com", "s3cret"))
	assert.Equal(t, int32(1), atomic.LoadInt32(fired))

	err := login.Register("alice@example.com ", "other")
	assert.ErrorIs(t, err, ErrUserExists)

	u, err := login.Login("ALICE@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = login.Login("alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = login.Login("nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, login.Register("", "x"), ErrInvalidCredentials)
	assert.ErrorIs(t, login.Register("bob@example.com", ""), ErrInvalidCredentials)
}

func TestLogin_StoresBcryptHashes(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Login().Register("a@b.c", "pw"))

	users, _ := r.Export()
	require.Len(t, users, 1)
	assert.NotEqual(t, "pw", users[0].PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].PasswordHash), []byte("pw")))

	public := r.Login().Users()
	require.Len(t, public, 1)
	assert.Equal(t, "a@b.c", public[0].Email)
}

func TestCRUD_Lifecycle(t *testing.T) {
	r, fired := newTestRegistry(t)

	tasks, err := r.CreateCRUD("tasks", []string{"description", "status"})
	require.NoError(t, err)

	id, err := tasks.Add(map[string]any{"description": "write tests", "status": "open", "extra": "dropped"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	id2, err := tasks.Add(map[string]any{"description": "ship"})
	require.NoError(t, err)

	items := tasks.List()
	require.Len(t, items, 2)
	assert.Equal(t, Item{"_id": id, "description": "write tests", "status": "open"}, items[0])
	assert.Equal(t, Item{"_id": id2, "description": "ship", "status": nil}, items[1])

	// List hands out copies
	items[0]["status"] = "mutated"
	got, ok := tasks.Get(id)
	require.True(t, ok)
	assert.Equal(t, "open", got["status"])

	ok, err = tasks.Edit(id, map[string]any{"status": "done", "_id": "hijack", "extra": 1})
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ = tasks.Get(id)
	assert.Equal(t, "done", got["status"])
	assert.Equal(t, id, got.ID())

	ok, err = tasks.Edit("missing", map[string]any{"status": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := tasks.FindBy("status", "done")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID())

	_, err = tasks.FindBy("owner", "x")
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.True(t, tasks.Delete(id2))
	assert.False(t, tasks.Delete(id2))
	assert.Equal(t, 1, tasks.Count())

	// create + 2 adds + 1 edit + 1 delete
	assert.Equal(t, int32(5), atomic.LoadInt32(fired))
}

func TestCRUD_NestedValuesAreCopied(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, err := r.CreateCRUD("profiles", []string{"meta"})
	require.NoError(t, err)

	input := map[string]any{"tags": []any{"a", "b"}, "owner": map[string]any{"name": "ada"}}
	id, err := c.Add(map[string]any{"meta": input})
	require.NoError(t, err)
	input["tags"].([]any)[0] = "changed by caller"

	listed := c.List()
	require.Len(t, listed, 1)
	meta := listed[0]["meta"].(map[string]any)
	meta["tags"].([]any)[1] = "mutated"
	meta["owner"].(map[string]any)["name"] = "mallory"

	found, err := c.FindBy(IDField, id)
	require.NoError(t, err)
	require.Len(t, found, 1)
	found[0]["meta"].(map[string]any)["extra"] = true

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"tags":  []any{"a", "b"},
		"owner": map[string]any{"name": "ada"},
	}, got["meta"])
}

func TestCRUD_FindByNormalisesNumbers(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, err := r.CreateCRUD("scores", []string{"points"})
	require.NoError(t, err)

	_, err = c.Add(map[string]any{"points": 10})
	require.NoError(t, err)

	found, err := c.FindBy("points", 10.0)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = c.FindBy("points", int64(10))
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRegistry_CreateValidation(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreateCRUD("notes", []string{"title"})
	require.NoError(t, err)

	_, err = r.CreateCRUD("notes", []string{"title"})
	assert.ErrorIs(t, err, ErrModuleExists)
	_, err = r.CreateCRUD("login", []string{"x"})
	assert.ErrorIs(t, err, ErrModuleExists)

	for _, tc := range []struct {
		name   string
		fields []string
	}{
		{"Bad", []string{"a"}},
		{"empty", nil},
		{"dups", []string{"a", "a"}},
		{"reserved", []string{"_id"}},
		{"spaces", []string{"a b"}},
	} {
		_, err := r.CreateCRUD(tc.name, tc.fields)
		assert.ErrorIs(t, err, ErrInvalidModule, tc.name)
	}
}

func TestRegistry_DropAndDescribe(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.CreateCRUD("zeta", []string{"a"})
	require.NoError(t, err)
	_, err = r.CreateCRUD("alpha", []string{"b"})
	require.NoError(t, err)

	infos := r.Describe()
	require.Len(t, infos, 3)
	assert.Equal(t, "login", infos[0].Name)
	assert.Equal(t, "alpha", infos[1].Name)
	assert.Equal(t, "zeta", infos[2].Name)

	assert.ErrorIs(t, r.DropCRUD("login"), ErrProtectedModule)
	assert.ErrorIs(t, r.DropCRUD("missing"), ErrModuleNotFound)
	require.NoError(t, r.DropCRUD("zeta"))
	_, err = r.CRUD("zeta")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestRegistry_EnsureDefaults(t *testing.T) {
	r, _ := newTestRegistry(t)

	created, err := r.EnsureDefaults("admin@ptpy.os", "admin")
	require.NoError(t, err)
	assert.True(t, created)

	tasks, err := r.CRUD("tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"description", "status"}, tasks.Fields())

	_, err = r.Login().Login("admin@ptpy.os", "admin")
	require.NoError(t, err)

	created, err = r.EnsureDefaults("admin@ptpy.os", "admin")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRegistry_ExportImport(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Login().Register("u@x.y", "pw"))
	c, err := r.CreateCRUD("notes", []string{"title"})
	require.NoError(t, err)
	id, err := c.Add(map[string]any{"title": "hello"})
	require.NoError(t, err)

	users, data := r.Export()

	other, fired := newTestRegistry(t)
	require.NoError(t, other.Import(users, data))
	assert.Equal(t, int32(0), atomic.LoadInt32(fired))

	notes, err := other.CRUD("notes")
	require.NoError(t, err)
	item, ok := notes.Get(id)
	require.True(t, ok)
	assert.Equal(t, "hello", item["title"])

	_, err = other.Login().Login("u@x.y", "pw")
	require.NoError(t, err)

	err = other.Import(nil, map[string]CRUDData{"Bad Name": {Fields: []string{"a"}}})
	assert.ErrorIs(t, err, ErrInvalidModule)
}
