package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// streamMessage is the JSON shape of every SSE data line on a session feed.
// Type is "send" for payloads the program emitted and "timeline" for the
// cursor state after a mutation. Timeline messages carry the locals diff
// between the departed and entered entries, so subscribers can update a
// branch view without refetching the whole session.
type streamMessage struct {
	Type    string             `json:"type"`
	Payload any                `json:"payload,omitempty"`
	Cursor  *int               `json:"cursor,omitempty"`
	Current string             `json:"current,omitempty"`
	Labels  []string           `json:"labels,omitempty"`
	Diff    *domain.LocalsDiff `json:"diff,omitempty"`
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // session ID -> set of channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a listener for one session. The returned cancel func
// removes the listener and closes its channel.
func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Broadcast fans a message out to every subscriber of the session. Slow
// clients whose buffer is full miss the message rather than block the
// dispatch path.
func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if subs, ok := sm.subscribers[sessionID]; ok {
		for ch := range subs {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// broadcastSink collects payloads for the HTTP response being assembled and
// fans each one out to the session's SSE subscribers as it happens.
type broadcastSink struct {
	mu      sync.Mutex
	values  []any
	streams *StreamManager
	session string
}

func newBroadcastSink(streams *StreamManager, sessionID string) *broadcastSink {
	return &broadcastSink{streams: streams, session: sessionID}
}

func (b *broadcastSink) Sink() domain.Sink {
	return func(ctx context.Context, payload any) {
		b.mu.Lock()
		b.values = append(b.values, payload)
		b.mu.Unlock()

		if msg, err := json.Marshal(streamMessage{Type: "send", Payload: payload}); err == nil {
			b.streams.Broadcast(b.session, string(msg))
		}
	}
}

func (b *broadcastSink) Outputs() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values
}

// broadcastTimeline notifies the session's subscribers of a cursor change.
func (s *Server) broadcastTimeline(sessionID string, state sessionState) {
	cursor := state.Cursor
	msg, err := json.Marshal(streamMessage{
		Type:    "timeline",
		Cursor:  &cursor,
		Current: state.Current,
		Labels:  state.Labels,
		Diff:    state.Diff,
	})
	if err != nil {
		return
	}
	s.streams.Broadcast(sessionID, string(msg))
}

// streamSession handles GET /api/sessions/{sessionID}/stream (SSE). The
// session does not have to exist yet; subscribing before the first dispatch
// is how a client observes a session from its very start.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		s.logger.Error("stream: response writer cannot flush")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var watch *string
	if err := runtime.BindQueryParameter("form", true, false, "watch", r.URL.Query(), &watch); err != nil {
		http.Error(w, fmt.Sprintf("invalid watch: %v", err), http.StatusBadRequest)
		return
	}
	var watchList []string
	if watch != nil {
		watchList = strings.Split(*watch, ",")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(sessionID)
	defer cancel()

	s.logger.Info("SSE subscriber connected", "session_id", sessionID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE subscriber disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !matchesWatch(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// matchesWatch filters a session feed message by its type field. An empty
// watch list keeps everything, as does a message that cannot be parsed.
func matchesWatch(msg string, watchList []string) bool {
	if len(watchList) == 0 {
		return true
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(msg), &probe); err != nil {
		return true
	}
	for _, want := range watchList {
		if strings.TrimSpace(want) == probe.Type {
			return true
		}
	}
	return false
}

// streamPrograms handles GET /api/programs/stream (SSE). It requires a
// program source that can report changes; static sources get a 501.
func (s *Server) streamPrograms(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		s.logger.Error("stream: response writer cannot flush")
		return
	}

	watchable, ok := s.manager.Loader().(ports.Watchable)
	if !ok {
		http.Error(w, "program source does not support change notification", http.StatusNotImplemented)
		return
	}

	changes, err := watchable.Watch(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("watch error: %v", err), http.StatusInternalServerError)
		s.logger.Error("stream: watch failed", "err", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case name, ok := <-changes:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", name)
			flusher.Flush()
		}
	}
}
