// SPDX-License-Identifier: MIT

// Package modules hosts the module engine: a login module and any number
// of generic CRUD modules keyed by name.
package modules

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/validate"
)

// LoginModule is the reserved name of the login module.
const LoginModule = "login"

// DefaultCRUD is created on first boot.
var DefaultCRUD = struct {
	Name   string
	Fields []string
}{Name: "tasks", Fields: []string{"description", "status"}}

var (
	ErrModuleExists       = errors.New("module already exists")
	ErrModuleNotFound     = errors.New("module not found")
	ErrProtectedModule    = errors.New("module cannot be removed")
	ErrInvalidModule      = errors.New("invalid module definition")
	ErrUnknownField       = errors.New("unknown field")
	ErrUserExists         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Kind distinguishes module implementations.
type Kind string

const (
	KindLogin Kind = "login"
	KindCRUD  Kind = "crud"
)

// Info describes a registered module.
type Info struct {
	Name   string   `json:"name"`
	Kind   Kind     `json:"kind"`
	Fields []string `json:"fields,omitempty"`
	Count  int      `json:"count"`
}

// Registry owns all modules.
type Registry struct {
	mu       sync.RWMutex
	login    *Login
	cruds    map[string]*CRUD
	onChange func()
	logger   zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBcryptCost sets the password hashing cost of the login module.
func WithBcryptCost(cost int) Option {
	return func(r *Registry) { r.login.cost = cost }
}

// NewRegistry returns a registry holding only the login module.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		cruds:  make(map[string]*CRUD),
		logger: log.WithComponent("modules"),
	}
	r.login = newLogin(r.fire)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetChangeHook installs the persistence hook fired after every mutation.
// The hook runs without module locks held.
func (r *Registry) SetChangeHook(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Registry) fire() {
	r.mu.RLock()
	hook := r.onChange
	r.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

// Login returns the login module.
func (r *Registry) Login() *Login { return r.login }

// CreateCRUD registers a new CRUD module.
func (r *Registry) CreateCRUD(name string, fields []string) (*CRUD, error) {
	if err := validateDefinition(name, fields); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if name == LoginModule || r.cruds[name] != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrModuleExists, name)
	}
	c := newCRUD(name, fields, r.fire)
	r.cruds[name] = c
	r.mu.Unlock()

	r.logger.Info().
		Str(log.FieldEvent, "modules.created").
		Str(log.FieldModule, name).
		Strs("fields", fields).
		Msg("crud module created")
	r.fire()
	return c, nil
}

// DropCRUD removes a CRUD module and its data.
func (r *Registry) DropCRUD(name string) error {
	if name == LoginModule {
		return fmt.Errorf("%w: %s", ErrProtectedModule, name)
	}
	r.mu.Lock()
	if r.cruds[name] == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	delete(r.cruds, name)
	r.mu.Unlock()

	r.logger.Info().Str(log.FieldEvent, "modules.dropped").Str(log.FieldModule, name).Msg("crud module removed")
	r.fire()
	return nil
}

// CRUD looks up a CRUD module by name.
func (r *Registry) CRUD(name string) (*CRUD, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.cruds[name]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return c, nil
}

// Describe lists every module, login first, then CRUD modules by name.
func (r *Registry) Describe() []Info {
	r.mu.RLock()
	names := make([]string, 0, len(r.cruds))
	for n := range r.cruds {
		names = append(names, n)
	}
	cruds := make([]*CRUD, 0, len(names))
	sort.Strings(names)
	for _, n := range names {
		cruds = append(cruds, r.cruds[n])
	}
	r.mu.RUnlock()

	out := []Info{{Name: LoginModule, Kind: KindLogin, Count: r.login.Count()}}
	for _, c := range cruds {
		out = append(out, Info{Name: c.Name(), Kind: KindCRUD, Fields: c.Fields(), Count: c.Count()})
	}
	return out
}

// Export returns deep copies of all persisted module data.
func (r *Registry) Export() ([]User, map[string]CRUDData) {
	r.mu.RLock()
	cruds := make(map[string]*CRUD, len(r.cruds))
	for n, c := range r.cruds {
		cruds[n] = c
	}
	r.mu.RUnlock()

	data := make(map[string]CRUDData, len(cruds))
	for n, c := range cruds {
		data[n] = c.export()
	}
	return r.login.export(), data
}

// Import replaces all module data. It does not fire the change hook.
func (r *Registry) Import(users []User, data map[string]CRUDData) error {
	cruds := make(map[string]*CRUD, len(data))
	for name, d := range data {
		if err := validateDefinition(name, d.Fields); err != nil {
			return fmt.Errorf("import %s: %w", name, err)
		}
		c := newCRUD(name, d.Fields, r.fire)
		c.load(d.Items)
		cruds[name] = c
	}

	r.mu.Lock()
	r.cruds = cruds
	r.mu.Unlock()
	r.login.load(users)
	return nil
}

// EnsureDefaults creates the default CRUD module and, when no user exists,
// the bootstrap admin account. It reports whether the admin was created.
func (r *Registry) EnsureDefaults(adminEmail, adminPassword string) (bool, error) {
	if _, err := r.CRUD(DefaultCRUD.Name); errors.Is(err, ErrModuleNotFound) {
		if _, err := r.CreateCRUD(DefaultCRUD.Name, DefaultCRUD.Fields); err != nil && !errors.Is(err, ErrModuleExists) {
			return false, err
		}
	}

	if r.login.Count() > 0 {
		return false, nil
	}
	if err := r.login.Register(adminEmail, adminPassword); err != nil {
		return false, fmt.Errorf("register admin: %w", err)
	}
	r.logger.Warn().
		Str(log.FieldEvent, "modules.admin_bootstrap").
		Str(log.FieldUser, adminEmail).
		Msg("no users found, default admin created; change its password")
	return true, nil
}

func validateDefinition(name string, fields []string) error {
	v := validate.New()
	v.Slug("name", name)
	if len(fields) == 0 {
		v.AddError("fields", "at least one field is required", fields)
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if !validate.IsIdentifier(f) {
			v.AddError("fields", fmt.Sprintf("%q is not a valid field name", f), f)
		}
		if f == IDField {
			v.AddError("fields", IDField+" is reserved", f)
		}
		if _, dup := seen[f]; dup {
			v.AddError("fields", fmt.Sprintf("duplicate field %q", f), f)
		}
		seen[f] = struct{}{}
	}
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}
	return nil
}
