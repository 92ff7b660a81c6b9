package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/dsl"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/aretw0/espalier/pkg/registry"
	"github.com/aretw0/espalier/pkg/session"
)

func relayProgram(t *testing.T) domain.Program {
	t.Helper()
	program, err := dsl.NewProgram("relay").
		Label("loop").
		Receive("wait", dsl.WithSaveTo("msg")).
		Send("got {{msg.text}}").
		Goto("loop").
		Build()
	if err != nil {
		t.Fatalf("build relay: %v", err)
	}
	return program
}

func gateProgram(t *testing.T) domain.Program {
	t.Helper()
	program, err := dsl.NewProgram("gate").
		Label("loop").
		Receive("wait", dsl.WithExpects(map[string]string{"n": "int"})).
		Send("accepted").
		Goto("loop").
		Build()
	if err != nil {
		t.Fatalf("build gate: %v", err)
	}
	return program
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	reg := registry.NewRegistry()
	reg.Register(relayProgram(t))
	reg.Register(gateProgram(t))
	mgr := session.NewManager(memory.NewStore(), reg)
	return NewHandler(mgr)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) sessionState {
	t.Helper()
	var state sessionState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode session state: %v (body: %s)", err, w.Body.String())
	}
	return state
}

func TestGetHealth(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestGetInfo(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/info", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["app"] != "espalier-http" {
		t.Errorf("unexpected app name %q", resp["app"])
	}
	if resp["version"] == "" || resp["version"] == "unknown" {
		t.Errorf("expected embedded version, got %q", resp["version"])
	}
	if resp["api_version"] != "0.1.0" {
		t.Errorf("expected api_version from openapi.yaml, got %q", resp["api_version"])
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "OPTIONS", "/api/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}
}

func TestDispatchStartsAndExtendsSession(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "hello",
		"payload": map[string]any{"text": "hi"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d %s", w.Code, w.Body.String())
	}
	state := decodeState(t, w)
	if state.Program != "relay" || state.Cursor != 1 || state.Current != "hello" {
		t.Errorf("unexpected state after first dispatch: %+v", state)
	}
	if len(state.Outputs) != 1 || state.Outputs[0] != "got hi" {
		t.Errorf("expected output [got hi], got %v", state.Outputs)
	}

	// The session now exists; the program name can be omitted.
	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"type":    "again",
		"payload": map[string]any{"text": "two"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second dispatch failed: %d %s", w.Code, w.Body.String())
	}
	state = decodeState(t, w)
	if state.Cursor != 2 || len(state.Labels) != 2 || state.Labels[1] != "again" {
		t.Errorf("unexpected state after second dispatch: %+v", state)
	}
	if len(state.Outputs) != 1 || state.Outputs[0] != "got two" {
		t.Errorf("expected output [got two], got %v", state.Outputs)
	}
}

func TestDispatchValidation(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/sessions/s1/events", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", w.Code)
	}

	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"payload": map[string]any{"text": "hi"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing type: expected 400, got %d", w.Code)
	}

	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "nope",
		"type":    "hello",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown program: expected 404, got %d", w.Code)
	}

	// No session and no program to start one with.
	w = doJSON(t, handler, "POST", "/api/sessions/ghost/events", map[string]any{
		"type": "hello",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected 404, got %d", w.Code)
	}

	oversized := strings.Repeat("x", 5000)
	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "hello",
		"payload": map[string]any{"text": oversized},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized payload: expected 400, got %d", w.Code)
	}
}

func TestDispatchBranchErrorIs422(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "POST", "/api/sessions/g1/events", map[string]any{
		"program": "gate",
		"type":    "bad",
		"payload": map[string]any{"n": "not a number"},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `branch "bad" failed`) {
		t.Errorf("expected branch failure message, got %q", w.Body.String())
	}

	// The rejected event must not have grown the timeline.
	w = doJSON(t, handler, "GET", "/api/sessions/g1/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history failed: %d", w.Code)
	}
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if hist.Total != 1 || hist.Cursor != 0 {
		t.Errorf("expected pristine root-only timeline, got total=%d cursor=%d", hist.Total, hist.Cursor)
	}
}

func TestUndoRedoCursor(t *testing.T) {
	handler := newTestHandler(t)

	for _, label := range []string{"a", "b"} {
		w := doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
			"program": "relay",
			"type":    label,
			"payload": map[string]any{"text": label},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("dispatch %q failed: %d", label, w.Code)
		}
	}

	w := doJSON(t, handler, "POST", "/api/sessions/s1/undo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("undo failed: %d %s", w.Code, w.Body.String())
	}
	if state := decodeState(t, w); state.Cursor != 1 || state.Current != "a" {
		t.Errorf("after undo: %+v", state)
	}

	w = doJSON(t, handler, "POST", "/api/sessions/s1/redo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redo failed: %d %s", w.Code, w.Body.String())
	}
	if state := decodeState(t, w); state.Cursor != 2 || state.Current != "b" {
		t.Errorf("after redo: %+v", state)
	}

	if w = doJSON(t, handler, "POST", "/api/sessions/s1/redo", nil); w.Code != http.StatusConflict {
		t.Errorf("redo at end: expected 409, got %d", w.Code)
	}

	for i := 0; i < 2; i++ {
		if w = doJSON(t, handler, "POST", "/api/sessions/s1/undo", nil); w.Code != http.StatusOK {
			t.Fatalf("undo %d failed: %d", i, w.Code)
		}
	}
	if w = doJSON(t, handler, "POST", "/api/sessions/s1/undo", nil); w.Code != http.StatusConflict {
		t.Errorf("undo at root: expected 409, got %d", w.Code)
	}

	if w = doJSON(t, handler, "POST", "/api/sessions/ghost/undo", nil); w.Code != http.StatusNotFound {
		t.Errorf("undo on missing session: expected 404, got %d", w.Code)
	}
}

func TestMutationsReportLocalsDiff(t *testing.T) {
	handler := newTestHandler(t)

	// A session's first dispatch has nothing to diff against, so the diff
	// covers the entered frame entirely: its position plus every local.
	w := doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "a",
		"payload": map[string]any{"text": "one"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("first dispatch failed: %d %s", w.Code, w.Body.String())
	}
	state := decodeState(t, w)
	if state.Diff == nil || state.Diff.Position == nil {
		t.Fatalf("expected initial-load diff with position, got %+v", state.Diff)
	}
	if !reflect.DeepEqual(state.Diff.Delta["msg"], map[string]any{"text": "one"}) {
		t.Errorf("expected msg local in delta, got %v", state.Diff.Delta)
	}

	// The second entry suspends at the same receive, so the diff narrows to
	// the locals that actually changed.
	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"type":    "b",
		"payload": map[string]any{"text": "two"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second dispatch failed: %d %s", w.Code, w.Body.String())
	}
	state = decodeState(t, w)
	if state.Diff == nil {
		t.Fatal("expected a diff on the second dispatch")
	}
	if state.Diff.Position != nil {
		t.Errorf("expected no position change, got %v", *state.Diff.Position)
	}
	if !reflect.DeepEqual(state.Diff.Delta["msg"], map[string]any{"text": "two"}) {
		t.Errorf("expected changed msg local, got %v", state.Diff.Delta)
	}

	// Undo departs the newest entry; the diff reports the restored value.
	w = doJSON(t, handler, "POST", "/api/sessions/s1/undo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("undo failed: %d %s", w.Code, w.Body.String())
	}
	state = decodeState(t, w)
	if state.Diff == nil || !reflect.DeepEqual(state.Diff.Delta["msg"], map[string]any{"text": "one"}) {
		t.Errorf("expected undo diff restoring msg, got %+v", state.Diff)
	}

	// And redo reapplies it.
	w = doJSON(t, handler, "POST", "/api/sessions/s1/redo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redo failed: %d %s", w.Code, w.Body.String())
	}
	state = decodeState(t, w)
	if state.Diff == nil || !reflect.DeepEqual(state.Diff.Delta["msg"], map[string]any{"text": "two"}) {
		t.Errorf("expected redo diff reapplying msg, got %+v", state.Diff)
	}
}

func TestHistoryPaging(t *testing.T) {
	handler := newTestHandler(t)

	for _, label := range []string{"a", "b", "c"} {
		w := doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
			"program": "relay",
			"type":    label,
			"payload": map[string]any{"text": label},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("dispatch %q failed: %d", label, w.Code)
		}
	}

	cases := []struct {
		name   string
		query  string
		code   int
		labels []string
	}{
		{"Everything", "", http.StatusOK, []string{"", "a", "b", "c"}},
		{"OffsetOnly", "?offset=2", http.StatusOK, []string{"b", "c"}},
		{"OffsetAndCount", "?offset=1&count=2", http.StatusOK, []string{"a", "b"}},
		{"CountPastEnd", "?offset=3&count=10", http.StatusOK, []string{"c"}},
		{"EmptyPage", "?offset=4", http.StatusOK, []string{}},
		{"OffsetOutOfRange", "?offset=5", http.StatusBadRequest, nil},
		{"NegativeCount", "?count=-1", http.StatusBadRequest, nil},
		{"MalformedOffset", "?offset=zz", http.StatusBadRequest, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, handler, "GET", "/api/sessions/s1/history"+tc.query, nil)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d (%s)", tc.code, w.Code, w.Body.String())
			}
			if tc.code != http.StatusOK {
				return
			}
			var hist historyResponse
			if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
				t.Fatalf("decode history: %v", err)
			}
			if hist.Total != 4 || hist.Cursor != 3 {
				t.Errorf("expected total=4 cursor=3, got total=%d cursor=%d", hist.Total, hist.Cursor)
			}
			if len(hist.Entries) != len(tc.labels) {
				t.Fatalf("expected %d entries, got %d", len(tc.labels), len(hist.Entries))
			}
			for i, want := range tc.labels {
				if hist.Entries[i].Label != want {
					t.Errorf("entry %d: expected label %q, got %q", i, want, hist.Entries[i].Label)
				}
			}
		})
	}

	if w := doJSON(t, handler, "GET", "/api/sessions/ghost/history", nil); w.Code != http.StatusNotFound {
		t.Errorf("history of missing session: expected 404, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/api/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"sessions":[]`) {
		t.Errorf("expected empty session list, got %s", w.Body.String())
	}

	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "hello",
		"payload": map[string]any{"text": "hi"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d", w.Code)
	}

	w = doJSON(t, handler, "GET", "/api/sessions", nil)
	if !strings.Contains(w.Body.String(), `"s1"`) {
		t.Errorf("expected s1 in session list, got %s", w.Body.String())
	}

	w = doJSON(t, handler, "GET", "/api/sessions/s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("describe failed: %d", w.Code)
	}
	var summary sessionSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Program != "relay" || summary.Cursor != 1 || summary.Current != "hello" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.SavedAt.IsZero() {
		t.Error("expected a save timestamp")
	}

	w = doJSON(t, handler, "DELETE", "/api/sessions/s1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if w = doJSON(t, handler, "GET", "/api/sessions/s1", nil); w.Code != http.StatusNotFound {
		t.Errorf("describe after delete: expected 404, got %d", w.Code)
	}
	if w = doJSON(t, handler, "DELETE", "/api/sessions/s1", nil); w.Code != http.StatusNotFound {
		t.Errorf("double delete: expected 404, got %d", w.Code)
	}
}

func TestListPrograms(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/api/programs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp["programs"]) != 2 || resp["programs"][0] != "gate" || resp["programs"][1] != "relay" {
		t.Errorf("expected [gate relay], got %v", resp["programs"])
	}
}

func TestRecentEventsRequiresJournal(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/api/events/recent", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without a journal, got %d", w.Code)
	}
}

func TestRecentEventsReportsDriverActivity(t *testing.T) {
	journal := observability.NewJournal(32)
	reg := registry.NewRegistry()
	reg.Register(relayProgram(t))
	mgr := session.NewManager(memory.NewStore(), reg,
		session.WithDriverHooks(func(program string) domain.LifecycleHooks {
			return journal.Hooks()
		}),
	)
	handler := NewHandler(mgr, WithJournal(journal))

	w := doJSON(t, handler, "GET", "/api/events/recent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Errorf("expected empty journal, got %s", w.Body.String())
	}

	w = doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "hello",
		"payload": map[string]any{"text": "hi"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "GET", "/api/events/recent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(resp.Events) == 0 {
		t.Fatal("expected recorded events after a dispatch")
	}
	seen := make(map[string]bool)
	for _, e := range resp.Events {
		seen[fmt.Sprint(e["type"])] = true
	}
	for _, want := range []string{"dispatch", "send", "branch"} {
		if !seen[want] {
			t.Errorf("expected a %q event in the journal, got %v", want, seen)
		}
	}
}

// syncRecorder is a flushable ResponseWriter that is safe to read while the
// handler is still writing, which plain httptest recorders are not.
type syncRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
	code   int
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: make(http.Header), code: http.StatusOK}
}

func (r *syncRecorder) Header() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *syncRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *syncRecorder) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(r.String(), substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in stream output:\n%s", substr, r.String())
}

func TestStreamSessionDelivers(t *testing.T) {
	handler := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newSyncRecorder()
	req := httptest.NewRequest("GET", "/api/sessions/s1/stream", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(sub, req)
		close(done)
	}()

	sub.waitFor(t, "event: ping")

	w := doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "hello",
		"payload": map[string]any{"text": "hi"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d %s", w.Code, w.Body.String())
	}

	sub.waitFor(t, `"type":"send"`)
	sub.waitFor(t, "got hi")
	sub.waitFor(t, `"type":"timeline"`)
	// The timeline message carries the locals diff of the new entry.
	sub.waitFor(t, `"delta"`)

	cancel()
	<-done
}

func TestStreamSessionWatchFilter(t *testing.T) {
	handler := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newSyncRecorder()
	req := httptest.NewRequest("GET", "/api/sessions/s1/stream?watch=timeline", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(sub, req)
		close(done)
	}()

	sub.waitFor(t, "event: ping")

	w := doJSON(t, handler, "POST", "/api/sessions/s1/events", map[string]any{
		"program": "relay",
		"type":    "hello",
		"payload": map[string]any{"text": "hi"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d", w.Code)
	}

	sub.waitFor(t, `"type":"timeline"`)

	cancel()
	<-done

	if strings.Contains(sub.String(), `"type":"send"`) {
		t.Errorf("send message should have been filtered out:\n%s", sub.String())
	}
}

// watchableRegistry wraps the static registry with a canned change feed.
type watchableRegistry struct {
	*registry.Registry
	changes chan string
}

func (w *watchableRegistry) Watch(ctx context.Context) (<-chan string, error) {
	return w.changes, nil
}

func TestStreamProgramsDelivers(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register(relayProgram(t))
	changes := make(chan string, 1)
	changes <- "relay"
	close(changes)

	mgr := session.NewManager(memory.NewStore(), &watchableRegistry{Registry: reg, changes: changes})
	handler := NewHandler(mgr)

	w := doJSON(t, handler, "GET", "/api/programs/stream", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: ping") {
		t.Error("expected ping preamble")
	}
	if !strings.Contains(body, "data: relay") {
		t.Errorf("expected reload data, got %q", body)
	}
}

func TestStreamProgramsRequiresWatchableLoader(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/api/programs/stream", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 for a static program source, got %d", w.Code)
	}
}

func TestGetOpenAPISpec(t *testing.T) {
	handler := newTestHandler(t)

	w := doJSON(t, handler, "GET", "/openapi.yaml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "openapi: 3.0.3") {
		t.Error("expected the embedded OpenAPI document")
	}

	w = doJSON(t, handler, "GET", "/swagger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/html" {
		t.Errorf("expected text/html, got %q", got)
	}
}
