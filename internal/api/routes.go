package api

import "net/http"

// setupRoutes registers every handler under the /api prefix; the health
// check is also registered at the root as /health.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/apps", s.handleCreateApp)
	mux.HandleFunc("GET /api/apps", s.handleListApps)

	mux.HandleFunc("POST /api/sources", s.handleCreateSource)
	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	mux.HandleFunc("PUT /api/sources/{id}", s.handleUpdateSource)
	mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)

	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/ingest/nginx", s.handleIngestFormat)
	mux.HandleFunc("POST /api/ingest/java", s.handleIngestFormat)
	mux.HandleFunc("POST /api/ingest/rust", s.handleIngestFormat)
	mux.HandleFunc("POST /api/ingest/go", s.handleIngestFormat)
	mux.HandleFunc("POST /api/ingest/auto", s.handleIngestFormat)

	mux.HandleFunc("POST /api/search", s.handleSearch)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
