package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/loglite/loglite/internal/query"
	"github.com/loglite/loglite/internal/storage"
)

// SearchRequest is the POST /api/search body.
type SearchRequest struct {
	AppID      string     `json:"app_id"`
	Query      string     `json:"q,omitempty"`
	Sources    []string   `json:"sources,omitempty"`
	Hosts      []string   `json:"hosts,omitempty"`
	Severities []int      `json:"severities,omitempty"`
	StartTS    *time.Time `json:"start_ts,omitempty"`
	EndTS      *time.Time `json:"end_ts,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// SearchItem is one result row.
type SearchItem struct {
	ID         int64           `json:"id"`
	AppID      string          `json:"app_id"`
	TS         time.Time       `json:"ts"`
	Host       string          `json:"host"`
	Source     string          `json:"source"`
	Sourcetype string          `json:"sourcetype,omitempty"`
	Severity   *int            `json:"severity,omitempty"`
	Message    string          `json:"message"`
	Fields     json.RawMessage `json:"fields,omitempty"`
}

// SearchResponse is the POST /api/search response.
type SearchResponse struct {
	Total int          `json:"total"`
	Items []SearchItem `json:"items"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid JSON body"))

		return
	}

	if req.AppID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("app_id is required"))

		return
	}

	result, err := s.planner.Plan(r.Context(), query.Request{
		AppID:      req.AppID,
		Query:      req.Query,
		Sources:    req.Sources,
		Hosts:      req.Hosts,
		Severities: req.Severities,
		StartTS:    req.StartTS,
		EndTS:      req.EndTS,
		Limit:      req.Limit,
	})
	if err != nil {
		if errors.Is(err, query.ErrBadQuery) {
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	items := make([]SearchItem, 0, len(result.Items))
	for _, e := range result.Items {
		items = append(items, searchItemFrom(e))
	}

	writeJSON(w, http.StatusOK, SearchResponse{Total: result.Total, Items: items})
}

func searchItemFrom(e *storage.Event) SearchItem {
	return SearchItem{
		ID:         e.ID,
		AppID:      e.AppID,
		TS:         e.TS,
		Host:       e.Host,
		Source:     e.Source,
		Sourcetype: e.Sourcetype,
		Severity:   e.Severity,
		Message:    e.Message,
		Fields:     e.Fields,
	}
}
