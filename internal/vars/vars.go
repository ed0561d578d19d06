// SPDX-License-Identifier: MIT

// Package vars holds the global variables of the mini OS.
package vars

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/minios/internal/validate"
)

// ErrInvalidName is returned for names that are not identifiers.
var ErrInvalidName = errors.New("invalid variable name")

// Defaults are the variables of a fresh state.
func Defaults() map[string]any {
	return map[string]any{
		"version":     "1.5",
		"system_name": "PTPY Mini OS",
	}
}

// Store is a concurrency-safe variable table.
type Store struct {
	mu       sync.RWMutex
	values   map[string]any
	onChange func()
}

// New returns a store seeded with Defaults.
func New() *Store {
	return &Store{values: Defaults()}
}

// SetChangeHook installs the persistence hook.
func (s *Store) SetChangeHook(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) fire() {
	s.mu.RLock()
	hook := s.onChange
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

// Get returns the value of name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set assigns name. The value must be JSON-encodable and is stored in
// its JSON-normalised form.
func (s *Store) Set(name string, value any) error {
	if !validate.IsIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}

	s.mu.Lock()
	s.values[name] = norm
	s.mu.Unlock()
	s.fire()
	return nil
}

// Delete removes name and reports whether it existed.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	_, ok := s.values[name]
	delete(s.values, name)
	s.mu.Unlock()
	if ok {
		s.fire()
	}
	return ok
}

// All returns a copy of every variable.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Replace swaps the whole table, e.g. after loading a snapshot. A nil map
// resets to Defaults. It does not fire the change hook.
func (s *Store) Replace(values map[string]any) {
	next := Defaults()
	if values != nil {
		next = make(map[string]any, len(values))
		for k, v := range values {
			next[k] = v
		}
	}
	s.mu.Lock()
	s.values = next
	s.mu.Unlock()
}

// ParseValue interprets text as JSON, falling back to a plain string.
func ParseValue(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v
	}
	return text
}
