package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/loglite/loglite/internal/storage"
)

// CreateSourceRequest is the POST /api/sources body.
type CreateSourceRequest struct {
	AppID       string  `json:"app_id"`
	Kind        string  `json:"kind"`
	Path        string  `json:"path"`
	Recursive   bool    `json:"recursive"`
	Encoding    string  `json:"encoding"`
	IncludeGlob *string `json:"include_glob,omitempty"`
	ExcludeGlob *string `json:"exclude_glob,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// UpdateSourceRequest is the PUT /api/sources/{id} body; nil fields leave
// the existing value unchanged.
type UpdateSourceRequest struct {
	Path        *string `json:"path,omitempty"`
	Recursive   *bool   `json:"recursive,omitempty"`
	Encoding    *string `json:"encoding,omitempty"`
	IncludeGlob *string `json:"include_glob,omitempty"`
	ExcludeGlob *string `json:"exclude_glob,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// SourceInfo is the response shape for every /api/sources endpoint.
type SourceInfo struct {
	ID          int64     `json:"id"`
	AppID       string    `json:"app_id"`
	Kind        string    `json:"kind"`
	Path        string    `json:"path"`
	Recursive   bool      `json:"recursive"`
	Encoding    string    `json:"encoding"`
	IncludeGlob *string   `json:"include_glob,omitempty"`
	ExcludeGlob *string   `json:"exclude_glob,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func sourceInfoFrom(s *storage.AppSource) SourceInfo {
	return SourceInfo{
		ID:          s.ID,
		AppID:       s.AppID,
		Kind:        s.Kind,
		Path:        s.Path,
		Recursive:   s.Recursive,
		Encoding:    s.Encoding,
		IncludeGlob: s.IncludeGlob,
		ExcludeGlob: s.ExcludeGlob,
		Enabled:     s.Enabled,
		CreatedAt:   s.CreatedAt,
	}
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid JSON body"))

		return
	}

	if req.AppID == "" || req.Path == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("app_id and path are required"))

		return
	}

	if req.Kind == "" {
		req.Kind = "tail"
	}

	if req.Encoding == "" {
		req.Encoding = "utf-8"
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	created, err := s.sources.CreateSource(r.Context(), &storage.AppSource{
		AppID:       req.AppID,
		Kind:        req.Kind,
		Path:        req.Path,
		Recursive:   req.Recursive,
		Encoding:    req.Encoding,
		IncludeGlob: req.IncludeGlob,
		ExcludeGlob: req.ExcludeGlob,
		Enabled:     enabled,
	})
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	writeJSON(w, http.StatusOK, sourceInfoFrom(created))
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")

	sources, err := s.sources.ListSources(r.Context(), appID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	out := make([]SourceInfo, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceInfoFrom(src))
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseSourceID(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	src, err := s.sources.GetSource(r.Context(), id)
	if err != nil {
		s.writeSourceLookupError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, sourceInfoFrom(src))
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseSourceID(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	var req UpdateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid JSON body"))

		return
	}

	updated, err := s.sources.UpdateSource(r.Context(), id, storage.SourcePatch{
		Path:        req.Path,
		Recursive:   req.Recursive,
		Encoding:    req.Encoding,
		IncludeGlob: req.IncludeGlob,
		ExcludeGlob: req.ExcludeGlob,
		Enabled:     req.Enabled,
	})
	if err != nil {
		s.writeSourceLookupError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, sourceInfoFrom(updated))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseSourceID(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	if err := s.sources.DeleteSource(r.Context(), id); err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseSourceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) writeSourceLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		WriteErrorResponse(w, r, s.logger, NotFound("source not found"))

		return
	}

	WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))
}
