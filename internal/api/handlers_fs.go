// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/notify"
	"github.com/ManuGH/minios/internal/sandbox"
	"github.com/ManuGH/minios/internal/telemetry"
)

type dirListing struct {
	Path    string   `json:"path"`
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

type fileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type pathRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Dest string `json:"dest,omitempty"`
}

type pathResponse struct {
	Path string `json:"path"`
}

// fs returns the sandbox or writes a 503 when the engine is not booted.
func (s *Server) fs(w http.ResponseWriter, r *http.Request) (*sandbox.FS, bool) {
	fs := s.eng.FS()
	if fs == nil {
		respondErr(w, r, engine.ErrNotBooted)
		return nil, false
	}
	return fs, true
}

func (s *Server) handleListDir(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	rel := r.URL.Query().Get("path")
	folders, files, err := fs.ListDir(rel)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(rel, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if folders == nil {
		folders = []string{}
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, dirListing{Path: rel, Folders: folders, Files: files})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	rel := r.URL.Query().Get("path")
	content, err := fs.ReadFile(rel)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(rel, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileContent{Path: rel, Content: content})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	rel := r.URL.Query().Get("path")
	var req fileContent
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	err := fs.CreateFile(rel, req.Content)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(rel, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pathResponse{Path: rel})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	var req pathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	err := fs.CreateFolder(req.Path)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(req.Path, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pathResponse{Path: req.Path})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	var req pathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	newPath, err := fs.Rename(req.Path, req.Name)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(req.Path, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pathResponse{Path: newPath})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	var req pathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	newPath, err := fs.Move(req.Path, req.Dest)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(req.Path, "")...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pathResponse{Path: newPath})
}

// handleDelete moves a file or folder to the trash.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	rel := r.URL.Query().Get("path")
	item, err := fs.Delete(rel)
	s.audit.TrashDelete(r.Context(), rel, item.ID, err)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(rel, item.ID)...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.eng.Notifier().Notify("Trash", fmt.Sprintf("'%s' moved to Trash.", path.Base(item.OriginalPath)), notify.SourceAPI)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	items := fs.TrashItems()
	if items == nil {
		items = []sandbox.TrashItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	item, err := fs.Restore(id)
	s.audit.TrashRestore(r.Context(), id, err)
	telemetry.Annotate(r.Context(), err, telemetry.SandboxAttributes(item.OriginalPath, id)...)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.eng.Notifier().Notify("Trash", fmt.Sprintf("'%s' restored.", path.Base(item.OriginalPath)), notify.SourceAPI)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.fs(w, r)
	if !ok {
		return
	}
	removed, err := fs.EmptyTrash()
	s.audit.TrashEmpty(r.Context(), removed, err)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
