// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/minios/internal/modules"
	"github.com/ManuGH/minios/internal/telemetry"
	"github.com/ManuGH/minios/internal/vars"
)

type moduleRequest struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Modules().Describe())
}

func (s *Server) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	c, err := s.eng.Modules().CreateCRUD(req.Name, req.Fields)
	telemetry.Annotate(r.Context(), err, telemetry.ModuleAttributes(req.Name, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, modules.Info{Name: c.Name(), Kind: modules.KindCRUD, Fields: c.Fields()})
}

func (s *Server) handleDropModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.eng.Modules().DropCRUD(name); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// crud resolves the {name} module or writes an error.
func (s *Server) crud(w http.ResponseWriter, r *http.Request) (*modules.CRUD, bool) {
	c, err := s.eng.Modules().CRUD(chi.URLParam(r, "name"))
	if err != nil {
		respondErr(w, r, err)
		return nil, false
	}
	return c, true
}

// handleListItems lists every item, or only those matching ?field=&value=.
// The value is parsed like a terminal `set` argument so numbers and
// booleans compare equal to their stored form.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	c, ok := s.crud(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		writeJSON(w, http.StatusOK, c.List())
		return
	}
	items, err := c.FindBy(field, vars.ParseValue(q.Get("value")))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.crud(w, r)
	if !ok {
		return
	}
	var values map[string]any
	if err := decodeJSON(w, r, &values); err != nil {
		badRequest(w, r, err)
		return
	}
	id, err := c.Add(values)
	telemetry.Annotate(r.Context(), err, telemetry.ModuleAttributes(c.Name(), id)...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	item, _ := c.Get(id)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.crud(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	item, found := c.Get(id)
	if !found {
		itemNotFound(w, r, id)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.crud(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var values map[string]any
	if err := decodeJSON(w, r, &values); err != nil {
		badRequest(w, r, err)
		return
	}
	found, err := c.Edit(id, values)
	telemetry.Annotate(r.Context(), err, telemetry.ModuleAttributes(c.Name(), id)...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !found {
		itemNotFound(w, r, id)
		return
	}
	item, _ := c.Get(id)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.crud(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !c.Delete(id) {
		itemNotFound(w, r, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func itemNotFound(w http.ResponseWriter, r *http.Request, id string) {
	RespondError(w, r, http.StatusNotFound, &APIError{Code: ErrNotFound.Code, Message: "item not found: " + id})
}
