// Package http exposes espalier sessions over a REST + SSE surface. Routes
// are hand-written against the chi router; api/openapi.yaml documents them
// and a test keeps the two in sync.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/api"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/aretw0/espalier/pkg/session"
)

// Server routes HTTP requests to a session manager. One server instance
// serves many sessions; per-session serialization happens inside the
// manager, not here.
type Server struct {
	manager *session.Manager
	logger  *slog.Logger
	streams *StreamManager
	journal *observability.Journal
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJournal exposes a lifecycle-event journal at /api/events/recent. The
// journal only sees drivers whose hooks feed it, so wire the same journal
// into the session manager's driver hooks. Without one the route answers
// 501.
func WithJournal(journal *observability.Journal) Option {
	return func(s *Server) {
		s.journal = journal
	}
}

// NewServer creates a server over the given session manager.
func NewServer(manager *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		logger:  logging.NewNop(),
		streams: NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a ready-to-mount HTTP handler for the manager.
func NewHandler(manager *session.Manager, opts ...Option) http.Handler {
	s := NewServer(manager, opts...)
	return enableCORS(s.Routes())
}

// Routes builds the routing table. Exposed so tests can walk it.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", s.getOpenAPISpec)
	r.Get("/swagger", s.getSwaggerUI)

	r.Get("/api/events/recent", s.getRecentEvents)
	r.Get("/api/programs", s.listPrograms)
	r.Get("/api/programs/stream", s.streamPrograms)
	r.Get("/api/sessions", s.listSessions)
	r.Get("/api/sessions/{sessionID}", s.describeSession)
	r.Delete("/api/sessions/{sessionID}", s.deleteSession)
	r.Get("/api/sessions/{sessionID}/history", s.getHistory)
	r.Get("/api/sessions/{sessionID}/stream", s.streamSession)
	r.Post("/api/sessions/{sessionID}/events", s.dispatchEvent)
	r.Post("/api/sessions/{sessionID}/undo", s.undoSession)
	r.Post("/api/sessions/{sessionID}/redo", s.redoSession)

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getHealth handles GET /healthz.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// getInfo handles GET /info.
func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := loadSpec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}

	s.writeJSON(w, map[string]string{
		"app":         "espalier-http",
		"version":     strings.TrimSpace(espalier.Version),
		"api_version": apiVersion,
	})
}

// getOpenAPISpec handles GET /openapi.yaml.
func (s *Server) getOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	w.Write(api.OpenAPI)
}

// getSwaggerUI handles GET /swagger.
func (s *Server) getSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(swaggerHTML))
}

// getRecentEvents handles GET /api/events/recent. It reports the lifecycle
// events the configured journal recorded, oldest first.
func (s *Server) getRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "event journal not configured", http.StatusNotImplemented)
		return
	}
	events := s.journal.Recent()
	if events == nil {
		events = []any{}
	}
	s.writeJSON(w, map[string]any{"events": events})
}

// listPrograms handles GET /api/programs.
func (s *Server) listPrograms(w http.ResponseWriter, r *http.Request) {
	names, err := s.manager.Loader().List(r.Context())
	if err != nil {
		s.writeError(w, "list programs", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, map[string][]string{"programs": names})
}

var (
	specOnce sync.Once
	specDoc  *openapi3.T
	specErr  error
)

// loadSpec parses the embedded OpenAPI document once.
func loadSpec() (*openapi3.T, error) {
	specOnce.Do(func() {
		specDoc, specErr = openapi3.NewLoader().LoadFromData(api.OpenAPI)
	})
	return specDoc, specErr
}

// writeJSON encodes v as the response body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps domain errors to status codes. Anything unrecognized is a
// 500 and gets logged; the well-known cases are the client's problem.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	var branchErr *domain.BranchError
	switch {
	case errors.As(err, &branchErr):
		http.Error(w, branchErr.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrTimelineNotFound), errors.Is(err, domain.ErrProgramNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAtStart), errors.Is(err, domain.ErrAtEnd):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.logger.Error(op+" failed", "err", err)
	}
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Espalier API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
