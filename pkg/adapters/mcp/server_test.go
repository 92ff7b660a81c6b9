package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/dsl"
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.NewRegistry()
	reg.Register(relayProgram(t))
	mgr := session.NewManager(memory.NewStore(), reg)
	return NewServer(mgr)
}

func TestHandleDispatchEvent(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	state, err := srv.handleDispatchEvent(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1",
		"program":    "relay",
		"type":       "hello",
		"payload":    `{"text":"hi"}`,
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if state.Program != "relay" || state.Cursor != 1 || state.Current != "hello" {
		t.Errorf("unexpected state: %+v", state)
	}
	if len(state.Outputs) != 1 || state.Outputs[0] != "got hi" {
		t.Errorf("expected output [got hi], got %v", state.Outputs)
	}

	// Session exists now; program may be omitted.
	state, err = srv.handleDispatchEvent(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1",
		"type":       "again",
		"payload":    `{"text":"two"}`,
	})
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}
	if state.Cursor != 2 || len(state.Labels) != 2 || state.Labels[1] != "again" {
		t.Errorf("unexpected state after second dispatch: %+v", state)
	}
}

func TestHandleDispatchEventValidation(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{"MissingSessionID", map[string]interface{}{"type": "x"}, "session_id is required"},
		{"MissingType", map[string]interface{}{"session_id": "s1"}, "type is required"},
		{"BadPayload", map[string]interface{}{"session_id": "s1", "program": "relay", "type": "x", "payload": "{broken"}, "not valid JSON"},
		{"UnknownProgram", map[string]interface{}{"session_id": "s1", "program": "nope", "type": "x"}, "program not found"},
		{"UnknownSession", map[string]interface{}{"session_id": "ghost", "type": "x"}, "timeline not found"},
		{"OversizedPayload", map[string]interface{}{"session_id": "s1", "program": "relay", "type": "x", "payload": `"` + strings.Repeat("x", 5000) + `"`}, "payload rejected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := srv.handleDispatchEvent(ctx, mcp.CallToolRequest{}, tc.args)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected %q in error, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestHandleUndoRedo(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	for _, label := range []string{"a", "b"} {
		if _, err := srv.handleDispatchEvent(ctx, mcp.CallToolRequest{}, map[string]interface{}{
			"session_id": "s1",
			"program":    "relay",
			"type":       label,
			"payload":    `{"text":"` + label + `"}`,
		}); err != nil {
			t.Fatalf("dispatch %q failed: %v", label, err)
		}
	}

	state, err := srv.handleUndo(ctx, mcp.CallToolRequest{}, map[string]interface{}{"session_id": "s1"})
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if state.Cursor != 1 || state.Current != "a" {
		t.Errorf("after undo: %+v", state)
	}

	state, err = srv.handleRedo(ctx, mcp.CallToolRequest{}, map[string]interface{}{"session_id": "s1"})
	if err != nil {
		t.Fatalf("redo failed: %v", err)
	}
	if state.Cursor != 2 || state.Current != "b" {
		t.Errorf("after redo: %+v", state)
	}

	if _, err := srv.handleRedo(ctx, mcp.CallToolRequest{}, map[string]interface{}{"session_id": "s1"}); err == nil {
		t.Error("redo at end should fail")
	}

	if _, err := srv.handleUndo(ctx, mcp.CallToolRequest{}, map[string]interface{}{"session_id": "ghost"}); err == nil {
		t.Error("undo on missing session should fail")
	}
}

func TestHandleGetHistory(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	for _, label := range []string{"a", "b", "c"} {
		if _, err := srv.handleDispatchEvent(ctx, mcp.CallToolRequest{}, map[string]interface{}{
			"session_id": "s1",
			"program":    "relay",
			"type":       label,
			"payload":    `{"text":"` + label + `"}`,
		}); err != nil {
			t.Fatalf("dispatch %q failed: %v", label, err)
		}
	}

	hist, err := srv.handleGetHistory(ctx, mcp.CallToolRequest{}, map[string]interface{}{"session_id": "s1"})
	if err != nil {
		t.Fatalf("get_history failed: %v", err)
	}
	if hist.Total != 4 || hist.Cursor != 3 || len(hist.Entries) != 4 {
		t.Errorf("unexpected history: %+v", hist)
	}
	if hist.Entries[0].Label != "" || hist.Entries[2].Label != "b" {
		t.Errorf("unexpected entry labels: %+v", hist.Entries)
	}

	hist, err = srv.handleGetHistory(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1",
		"offset":     float64(1),
		"count":      float64(2),
	})
	if err != nil {
		t.Fatalf("paged get_history failed: %v", err)
	}
	if len(hist.Entries) != 2 || hist.Entries[0].Label != "a" || hist.Entries[1].Label != "b" {
		t.Errorf("unexpected page: %+v", hist.Entries)
	}

	if _, err := srv.handleGetHistory(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1",
		"offset":     float64(9),
	}); err == nil {
		t.Error("out-of-range offset should fail")
	}

	if _, err := srv.handleGetHistory(ctx, mcp.CallToolRequest{}, map[string]interface{}{"session_id": "ghost"}); err == nil {
		t.Error("history of missing session should fail")
	}
}
