package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loglite/loglite/internal/ingest"
	"github.com/loglite/loglite/internal/logformat"
)

const defaultTenantAppID = "default"

// IngestEventRequest is one element of the POST /api/ingest events array.
type IngestEventRequest struct {
	TS         *time.Time      `json:"ts,omitempty"`
	Host       string          `json:"host,omitempty"`
	Source     string          `json:"source,omitempty"`
	Sourcetype string          `json:"sourcetype,omitempty"`
	Severity   *int            `json:"severity,omitempty"`
	Message    string          `json:"message"`
	Fields     json.RawMessage `json:"fields,omitempty"`
}

// IngestRequest is the POST /api/ingest body.
type IngestRequest struct {
	AppID  string               `json:"app_id"`
	Events []IngestEventRequest `json:"events"`
}

// IngestResponse reports how many events were accepted.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid JSON body"))

		return
	}

	if req.AppID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("app_id is required"))

		return
	}

	batch := make([]ingest.Event, 0, len(req.Events))

	for _, e := range req.Events {
		ts := time.Now()
		if e.TS != nil {
			ts = *e.TS
		}

		batch = append(batch, ingest.Event{
			TS:         ts,
			Host:       e.Host,
			Source:     e.Source,
			Sourcetype: e.Sourcetype,
			Severity:   e.Severity,
			Message:    e.Message,
			Fields:     e.Fields,
		})
	}

	accepted, err := s.ingestor.Ingest(r.Context(), req.AppID, batch)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{Accepted: accepted})
}

// formatRouteName maps a request path's trailing segment to the format
// label used both for detection (when "auto") and for the HTTP-route
// sourcetype suffix ("nginx_access", "java_app", "rust_app", "go_app").
var formatRouteName = map[string]logformat.Format{
	"nginx": logformat.Nginx,
	"java":  logformat.Java,
	"rust":  logformat.Rust,
	"go":    logformat.Go,
}

var httpRouteSourcetype = map[logformat.Format]string{
	logformat.Nginx: "nginx_access",
	logformat.Java:  "java_app",
	logformat.Rust:  "rust_app",
	logformat.Go:    "go_app",
}

// handleIngestFormat serves every /api/ingest/{nginx,java,rust,go,auto}
// route. The body is raw text/plain, one log line per line.
func (s *Server) handleIngestFormat(w http.ResponseWriter, r *http.Request) {
	route := lastPathSegment(r.URL.Path)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("could not read request body"))

		return
	}

	lines := splitLines(string(body))

	format, explicit := formatRouteName[route]
	if !explicit {
		format = logformat.DetectFormat(lines)
		if format == logformat.Unknown {
			WriteErrorResponse(w, r, s.logger, BadRequest("could not detect log format"))

			return
		}
	}

	events := formatToEvents(format, lines)

	accepted, err := s.ingestor.Ingest(r.Context(), defaultTenantAppID, events)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{Accepted: accepted})
}

// formatToEvents converts raw lines of a known format into ingest events.
// Nginx lines are never multi-line so they skip merge_multiline entirely;
// every other format runs the merge step first.
func formatToEvents(format logformat.Format, lines []string) []ingest.Event {
	if format == logformat.Nginx {
		events := make([]ingest.Event, 0, len(lines))

		for _, line := range lines {
			if line == "" {
				continue
			}

			parsed := logformat.ParseNginxLine(line)

			fields, _ := json.Marshal(map[string]string{"remote_addr": parsed.RemoteAddr})

			events = append(events, ingest.Event{
				TS:         time.Now(),
				Source:     "nginx",
				Sourcetype: httpRouteSourcetype[format],
				Message:    line,
				Fields:     fields,
			})
		}

		return events
	}

	entries := logformat.MergeMultiline(lines, format)
	events := make([]ingest.Event, 0, len(entries))

	for _, e := range entries {
		ts := e.Timestamp
		if !e.HasTime {
			ts = time.Now()
		}

		var fields json.RawMessage
		if e.Stacktrace != "" {
			fields, _ = json.Marshal(map[string]string{"stacktrace": e.Stacktrace})
		}

		events = append(events, ingest.Event{
			TS:         ts,
			Source:     string(format),
			Sourcetype: httpRouteSourcetype[format],
			Severity:   logformat.Severity(e.Level),
			Message:    e.Message,
			Fields:     fields,
		})
	}

	return events
}

func splitLines(body string) []string {
	return strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
}

func lastPathSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return path
	}

	return path[idx+1:]
}
