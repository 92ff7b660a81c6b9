// Package mcp exposes espalier sessions as Model Context Protocol tools, so
// agents can dispatch events, walk the timeline and inspect history over
// stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/runner"
	"github.com/aretw0/espalier/pkg/session"
)

// SessionState is the structured result of every mutating tool: the timeline
// as it stands after the call, plus whatever the program sent.
type SessionState struct {
	SessionID string   `json:"session_id" jsonschema_description:"The session the tool acted on"`
	Program   string   `json:"program" jsonschema_description:"Name of the program the session runs"`
	Labels    []string `json:"labels" jsonschema_description:"Event labels of all timeline entries after the root"`
	Cursor    int      `json:"cursor" jsonschema_description:"Cursor position; zero is the root entry"`
	Current   string   `json:"current" jsonschema_description:"Label of the entry under the cursor"`
	Outputs   []any    `json:"outputs,omitempty" jsonschema_description:"Payloads the program sent while handling the call"`
}

// HistoryEntry is one timeline entry in a get_history result.
type HistoryEntry struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Limit int    `json:"limit" jsonschema_description:"Admission budget of the entry; negative means unlimited"`
}

// History is the structured result of the get_history tool.
type History struct {
	Program string         `json:"program"`
	Total   int            `json:"total"`
	Cursor  int            `json:"cursor"`
	Entries []HistoryEntry `json:"entries"`
}

// Server wraps a session manager and exposes it as an MCP server.
type Server struct {
	manager   *session.Manager
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server over the given session manager.
func NewServer(manager *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager:   manager,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	dispatchTool := mcp.NewTool("dispatch_event",
		mcp.WithDescription("Dispatch an event to a session. Forks the timeline entry under the cursor and records the result as a new entry. Names a program to start the session if it does not exist yet."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Event label delivered to the program")),
		mcp.WithString("program", mcp.Description("Program to start the session with if it does not exist yet")),
		mcp.WithString("payload", mcp.Description("JSON-encoded payload delivered with the event (optional)")),
		mcp.WithOutputSchema[SessionState](),
	)
	s.mcpServer.AddTool(dispatchTool, mcp.NewStructuredToolHandler(s.handleDispatchEvent))

	undoTool := mcp.NewTool("undo",
		mcp.WithDescription("Move the session cursor one timeline entry back. The abandoned entries stay redoable."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithOutputSchema[SessionState](),
	)
	s.mcpServer.AddTool(undoTool, mcp.NewStructuredToolHandler(s.handleUndo))

	redoTool := mcp.NewTool("redo",
		mcp.WithDescription("Move the session cursor one timeline entry forward."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithOutputSchema[SessionState](),
	)
	s.mcpServer.AddTool(redoTool, mcp.NewStructuredToolHandler(s.handleRedo))

	historyTool := mcp.NewTool("get_history",
		mcp.WithDescription("Page through a session's timeline entries. Entry 0 is the root."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithNumber("offset", mcp.Description("Index of the first entry to return")),
		mcp.WithNumber("count", mcp.Description("Maximum number of entries to return")),
		mcp.WithOutputSchema[History](),
	)
	s.mcpServer.AddTool(historyTool, mcp.NewStructuredToolHandler(s.handleGetHistory))

	// TOOL: list_sessions
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the IDs of all stored sessions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.manager.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleDispatchEvent(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionState, error) {
	sessionID, _ := args["session_id"].(string)
	eventType, _ := args["type"].(string)
	program, _ := args["program"].(string)

	if sessionID == "" {
		return SessionState{}, fmt.Errorf("session_id is required")
	}
	if eventType == "" {
		return SessionState{}, fmt.Errorf("type is required")
	}

	var payload any
	if payloadStr, ok := args["payload"].(string); ok && payloadStr != "" {
		clean, err := runner.SanitizeInput(payloadStr)
		if err != nil {
			s.logger.Warn("dispatch_event: payload rejected", "session_id", sessionID, "err", err)
			return SessionState{}, fmt.Errorf("payload rejected: %w", err)
		}
		if err := json.Unmarshal([]byte(clean), &payload); err != nil {
			return SessionState{}, fmt.Errorf("payload is not valid JSON: %w", err)
		}
	}

	sink := newCollectingSink()
	driver, err := s.manager.Dispatch(ctx, sessionID, program, domain.NewEvent(eventType, payload), sink.Sink())
	if err != nil {
		return SessionState{}, fmt.Errorf("dispatch failed: %w", err)
	}

	return s.state(sessionID, driver, sink.Outputs()), nil
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionState, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return SessionState{}, fmt.Errorf("session_id is required")
	}

	sink := newCollectingSink()
	driver, err := s.manager.Undo(ctx, sessionID, sink.Sink())
	if err != nil {
		return SessionState{}, fmt.Errorf("undo failed: %w", err)
	}

	return s.state(sessionID, driver, sink.Outputs()), nil
}

func (s *Server) handleRedo(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionState, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return SessionState{}, fmt.Errorf("session_id is required")
	}

	sink := newCollectingSink()
	driver, err := s.manager.Redo(ctx, sessionID, sink.Sink())
	if err != nil {
		return SessionState{}, fmt.Errorf("redo failed: %w", err)
	}

	return s.state(sessionID, driver, sink.Outputs()), nil
}

func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (History, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return History{}, fmt.Errorf("session_id is required")
	}

	snap, err := s.manager.Load(ctx, sessionID)
	if err != nil {
		return History{}, fmt.Errorf("load failed: %w", err)
	}

	total := len(snap.Entries)
	offset := 0
	if v, ok := args["offset"].(float64); ok {
		offset = int(v)
	}
	if offset < 0 || offset > total {
		return History{}, fmt.Errorf("offset %d out of range [0, %d]", offset, total)
	}
	count := total - offset
	if v, ok := args["count"].(float64); ok {
		count = int(v)
	}
	if count < 0 {
		return History{}, fmt.Errorf("count must not be negative")
	}
	if offset+count > total {
		count = total - offset
	}

	entries := make([]HistoryEntry, 0, count)
	for i := 0; i < count; i++ {
		e := snap.Entries[offset+i]
		entries = append(entries, HistoryEntry{Index: offset + i, Label: e.Label, Limit: e.Limit})
	}

	return History{
		Program: snap.Program,
		Total:   total,
		Cursor:  snap.Cursor,
		Entries: entries,
	}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: espalier://programs
	s.mcpServer.AddResource(mcp.NewResource("espalier://programs", "Loadable Programs",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names, err := s.manager.Loader().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list programs: %w", err)
		}
		jsonBytes, _ := json.Marshal(names)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "espalier://programs",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) state(sessionID string, driver *espalier.Driver, outputs []any) SessionState {
	labels := driver.Labels()
	if labels == nil {
		labels = []string{}
	}
	return SessionState{
		SessionID: sessionID,
		Program:   driver.Program(),
		Labels:    labels,
		Cursor:    driver.CurrentIndex(),
		Current:   driver.Current(),
		Outputs:   outputs,
	}
}

// collectingSink gathers payloads a program sends during one tool call.
type collectingSink struct {
	values []any
}

func newCollectingSink() *collectingSink {
	return &collectingSink{}
}

func (c *collectingSink) Sink() domain.Sink {
	return func(ctx context.Context, payload any) {
		c.values = append(c.values, payload)
	}
}

func (c *collectingSink) Outputs() []any {
	return c.values
}
