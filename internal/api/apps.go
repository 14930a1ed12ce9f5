package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/loglite/loglite/internal/appid"
)

// CreateAppRequest is the POST /api/apps body.
type CreateAppRequest struct {
	Name string `json:"name"`
}

// AppInfo is the POST/GET /api/apps response shape.
type AppInfo struct {
	AppID     string    `json:"app_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req CreateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid JSON body"))

		return
	}

	if strings.TrimSpace(req.Name) == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("name must not be empty"))

		return
	}

	id := appid.Derive(req.Name)

	app, err := s.apps.CreateApp(r.Context(), id, req.Name)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	writeJSON(w, http.StatusOK, AppInfo{AppID: app.AppID, Name: app.Name, CreatedAt: app.CreatedAt})
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.ListApps(r.Context())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	out := make([]AppInfo, 0, len(apps))
	for _, a := range apps {
		out = append(out, AppInfo{AppID: a.AppID, Name: a.Name, CreatedAt: a.CreatedAt})
	}

	writeJSON(w, http.StatusOK, out)
}
