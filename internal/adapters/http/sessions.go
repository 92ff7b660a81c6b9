package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/runner"
)

// dispatchRequest is the body of POST /api/sessions/{sessionID}/events.
// Program is only consulted when the session does not exist yet.
type dispatchRequest struct {
	Program string          `json:"program,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// sessionState is the response to every mutation: the timeline as it stands
// after the request, whatever the program sent while handling it, and the
// locals diff between the entry the cursor departed and the one it entered.
type sessionState struct {
	SessionID string             `json:"session_id"`
	Program   string             `json:"program"`
	Labels    []string           `json:"labels"`
	Cursor    int                `json:"cursor"`
	Current   string             `json:"current"`
	Outputs   []any              `json:"outputs,omitempty"`
	Diff      *domain.LocalsDiff `json:"diff,omitempty"`
}

type sessionSummary struct {
	SessionID string    `json:"session_id"`
	Program   string    `json:"program"`
	Labels    []string  `json:"labels"`
	Cursor    int       `json:"cursor"`
	Current   string    `json:"current"`
	SavedAt   time.Time `json:"saved_at"`
}

type historyParams struct {
	Offset *int `json:"offset,omitempty"`
	Count  *int `json:"count,omitempty"`
}

type historyEntry struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Limit int    `json:"limit"`
}

type historyResponse struct {
	Program string         `json:"program"`
	Total   int            `json:"total"`
	Cursor  int            `json:"cursor"`
	Entries []historyEntry `json:"entries"`
}

// dispatchEvent handles POST /api/sessions/{sessionID}/events.
func (s *Server) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("dispatch: invalid request body", "err", err)
		return
	}
	if body.Type == "" {
		http.Error(w, "event type is required", http.StatusBadRequest)
		return
	}

	payload, err := decodePayload(body.Payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		s.logger.Warn("dispatch: payload rejected", "session_id", sessionID, "err", err)
		return
	}

	prev := s.peekSnapshot(r.Context(), sessionID)
	sink := newBroadcastSink(s.streams, sessionID)
	driver, err := s.manager.Dispatch(r.Context(), sessionID, body.Program, domain.NewEvent(body.Type, payload), sink.Sink())
	if err != nil {
		s.writeError(w, "dispatch", err)
		return
	}

	state := s.state(sessionID, driver, sink.Outputs())
	state.Diff = s.cursorDiff(r.Context(), prev, driver)
	s.broadcastTimeline(sessionID, state)
	s.writeJSON(w, state)
}

// undoSession handles POST /api/sessions/{sessionID}/undo.
func (s *Server) undoSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	prev := s.peekSnapshot(r.Context(), sessionID)
	sink := newBroadcastSink(s.streams, sessionID)
	driver, err := s.manager.Undo(r.Context(), sessionID, sink.Sink())
	if err != nil {
		s.writeError(w, "undo", err)
		return
	}

	state := s.state(sessionID, driver, sink.Outputs())
	state.Diff = s.cursorDiff(r.Context(), prev, driver)
	s.broadcastTimeline(sessionID, state)
	s.writeJSON(w, state)
}

// redoSession handles POST /api/sessions/{sessionID}/redo.
func (s *Server) redoSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	prev := s.peekSnapshot(r.Context(), sessionID)
	sink := newBroadcastSink(s.streams, sessionID)
	driver, err := s.manager.Redo(r.Context(), sessionID, sink.Sink())
	if err != nil {
		s.writeError(w, "redo", err)
		return
	}

	state := s.state(sessionID, driver, sink.Outputs())
	state.Diff = s.cursorDiff(r.Context(), prev, driver)
	s.broadcastTimeline(sessionID, state)
	s.writeJSON(w, state)
}

// getHistory handles GET /api/sessions/{sessionID}/history.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var params historyParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &params.Offset); err != nil {
		http.Error(w, fmt.Sprintf("invalid offset: %v", err), http.StatusBadRequest)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "count", query, &params.Count); err != nil {
		http.Error(w, fmt.Sprintf("invalid count: %v", err), http.StatusBadRequest)
		return
	}

	snap, err := s.manager.Load(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, "history", err)
		return
	}

	total := len(snap.Entries)
	offset := 0
	if params.Offset != nil {
		offset = *params.Offset
	}
	if offset < 0 || offset > total {
		http.Error(w, fmt.Sprintf("offset %d out of range [0, %d]", offset, total), http.StatusBadRequest)
		return
	}
	count := total - offset
	if params.Count != nil {
		count = *params.Count
	}
	if count < 0 {
		http.Error(w, "count must not be negative", http.StatusBadRequest)
		return
	}
	if offset+count > total {
		count = total - offset
	}

	entries := make([]historyEntry, 0, count)
	for i := 0; i < count; i++ {
		e := snap.Entries[offset+i]
		entries = append(entries, historyEntry{Index: offset + i, Label: e.Label, Limit: e.Limit})
	}

	s.writeJSON(w, historyResponse{
		Program: snap.Program,
		Total:   total,
		Cursor:  snap.Cursor,
		Entries: entries,
	})
}

// describeSession handles GET /api/sessions/{sessionID}.
func (s *Server) describeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snap, err := s.manager.Load(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, "describe", err)
		return
	}

	labels := []string{}
	current := ""
	if len(snap.Entries) > 0 {
		labels = make([]string, 0, len(snap.Entries)-1)
		for _, e := range snap.Entries[1:] {
			labels = append(labels, e.Label)
		}
		if snap.Cursor >= 0 && snap.Cursor < len(snap.Entries) {
			current = snap.Entries[snap.Cursor].Label
		}
	}

	s.writeJSON(w, sessionSummary{
		SessionID: sessionID,
		Program:   snap.Program,
		Labels:    labels,
		Cursor:    snap.Cursor,
		Current:   current,
		SavedAt:   snap.SavedAt,
	})
}

// listSessions handles GET /api/sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.manager.List(r.Context())
	if err != nil {
		s.writeError(w, "list sessions", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	sort.Strings(ids)
	s.writeJSON(w, map[string][]string{"sessions": ids})
}

// deleteSession handles DELETE /api/sessions/{sessionID}. Store deletes are
// idempotent, so existence is checked first to give callers a 404.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.manager.Load(r.Context(), sessionID); err != nil {
		s.writeError(w, "delete", err)
		return
	}
	if err := s.manager.Delete(r.Context(), sessionID); err != nil {
		s.writeError(w, "delete", err)
		return
	}
	s.logger.Info("session deleted", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// state assembles the mutation response from a live driver.
func (s *Server) state(sessionID string, driver *espalier.Driver, outputs []any) sessionState {
	labels := driver.Labels()
	if labels == nil {
		labels = []string{}
	}
	return sessionState{
		SessionID: sessionID,
		Program:   driver.Program(),
		Labels:    labels,
		Cursor:    driver.CurrentIndex(),
		Current:   driver.Current(),
		Outputs:   outputs,
	}
}

// peekSnapshot loads the stored timeline before a mutation so the response
// can diff against it. A session that does not exist yet, or a store that
// cannot be read, yields nil; the mutation itself decides whether that is an
// error.
func (s *Server) peekSnapshot(ctx context.Context, sessionID string) *domain.TimelineSnapshot {
	snap, err := s.manager.Load(ctx, sessionID)
	if err != nil {
		return nil
	}
	return snap
}

// cursorDiff compares the suspended frame under the cursor before and after
// a mutation. A nil before snapshot means the session is new, so the diff
// covers the entered frame entirely (initial load).
func (s *Server) cursorDiff(ctx context.Context, before *domain.TimelineSnapshot, driver *espalier.Driver) *domain.LocalsDiff {
	after, err := driver.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("diff: snapshot failed", "err", err)
		return nil
	}
	var beforeFrame *domain.Frame
	if before != nil && before.Cursor >= 0 && before.Cursor < len(before.Entries) {
		beforeFrame = before.Entries[before.Cursor].Frame
	}
	if after.Cursor < 0 || after.Cursor >= len(after.Entries) {
		return nil
	}
	return domain.DiffFrames(beforeFrame, after.Entries[after.Cursor].Frame)
}

// decodePayload turns the raw JSON payload into plain Go values and runs
// every string in it through the input sanitizer.
func decodePayload(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return sanitizePayload(payload)
}

// sanitizePayload applies the global input policy to string values at any
// depth. Size and encoding violations reject the whole request rather than
// silently altering it.
func sanitizePayload(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return runner.SanitizeInput(t)
	case map[string]any:
		for k, elem := range t {
			clean, err := sanitizePayload(elem)
			if err != nil {
				return nil, err
			}
			t[k] = clean
		}
		return t, nil
	case []any:
		for i, elem := range t {
			clean, err := sanitizePayload(elem)
			if err != nil {
				return nil, err
			}
			t[i] = clean
		}
		return t, nil
	default:
		return v, nil
	}
}
