// SPDX-License-Identifier: MIT

package modules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// IDField holds the generated identifier of every CRUD item.
const IDField = "_id"

// Item is one CRUD record. Values are JSON-normalised.
type Item map[string]any

// ID returns the item identifier.
func (it Item) ID() string {
	id, _ := it[IDField].(string)
	return id
}

// clone copies it deeply. Stored values are JSON-normalised, so nested data
// is made of map[string]any and []any only.
func (it Item) clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// CRUDData is the persisted form of a CRUD module.
type CRUDData struct {
	Fields []string `json:"fields"`
	Items  []Item   `json:"items"`
}

// CRUD is a generic record store restricted to a fixed field list.
type CRUD struct {
	name   string
	fields []string

	mu    sync.RWMutex
	items []Item
	fire  func()
	newID func() string
}

func newCRUD(name string, fields []string, fire func()) *CRUD {
	return &CRUD{
		name:   name,
		fields: slices.Clone(fields),
		fire:   fire,
		newID:  uuid.NewString,
	}
}

// Name returns the module name.
func (c *CRUD) Name() string { return c.name }

// Fields returns the declared fields.
func (c *CRUD) Fields() []string { return slices.Clone(c.fields) }

// Count returns the number of items.
func (c *CRUD) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Add stores a new item. Only declared fields are kept, missing ones are nil.
func (c *CRUD) Add(values map[string]any) (string, error) {
	item := make(Item, len(c.fields)+1)
	for _, f := range c.fields {
		v, err := normalize(values[f])
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f, err)
		}
		item[f] = v
	}
	id := c.newID()
	item[IDField] = id

	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()

	c.fire()
	return id, nil
}

// Edit updates declared fields of the item with id. It returns false when
// the id is unknown. Undeclared keys are ignored.
func (c *CRUD) Edit(id string, values map[string]any) (bool, error) {
	update := make(map[string]any, len(values))
	for _, f := range c.fields {
		v, ok := values[f]
		if !ok {
			continue
		}
		n, err := normalize(v)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", f, err)
		}
		update[f] = n
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return false, nil
	}
	for k, v := range update {
		c.items[idx][k] = v
	}
	c.mu.Unlock()

	c.fire()
	return true, nil
}

// Delete removes the item with id and reports whether it existed.
func (c *CRUD) Delete(id string) bool {
	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.items = slices.Delete(c.items, idx, idx+1)
	c.mu.Unlock()

	c.fire()
	return true
}

// Get returns a copy of the item with id.
func (c *CRUD) Get(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexOf(id); idx >= 0 {
		return c.items[idx].clone(), true
	}
	return nil, false
}

// List returns copies of all items in insertion order.
func (c *CRUD) List() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, len(c.items))
	for i, it := range c.items {
		out[i] = it.clone()
	}
	return out
}

// FindBy returns items whose field equals value after JSON normalisation.
func (c *CRUD) FindBy(field string, value any) ([]Item, error) {
	if field != IDField && !slices.Contains(c.fields, field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, c.name, field)
	}
	want, err := normalize(value)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []Item{}
	for _, it := range c.items {
		if reflect.DeepEqual(it[field], want) {
			out = append(out, it.clone())
		}
	}
	return out, nil
}

func (c *CRUD) indexOf(id string) int {
	for i, it := range c.items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}

func (c *CRUD) export() CRUDData {
	return CRUDData{Fields: c.Fields(), Items: c.List()}
}

func (c *CRUD) load(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID() == "" {
			continue
		}
		c.items = append(c.items, it.clone())
	}
}

// normalize round-trips v through JSON so stored and compared values share
// one representation (numbers become float64, structs become maps).
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.(type) {
	case string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value not representable as JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
