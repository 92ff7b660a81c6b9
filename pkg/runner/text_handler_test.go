package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseTextRequest(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantCommand Command
		wantType    string
		wantPayload any
	}{
		{"Undo Command", ":undo", CommandUndo, "", nil},
		{"Quit Command", ":quit", CommandQuit, "", nil},
		{"Bare Event", "hello", CommandNone, "hello", nil},
		{"JSON Payload", `order {"size":"large"}`, CommandNone, "order", map[string]any{"size": "large"}},
		{"Number Payload", "count 42", CommandNone, "count", float64(42)},
		{"Plain Text Payload", "note this is plain", CommandNone, "note", "this is plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := parseTextRequest(tt.line)
			if req.Command != tt.wantCommand {
				t.Errorf("command: expected %q, got %q", tt.wantCommand, req.Command)
			}
			if req.Event.Type != tt.wantType {
				t.Errorf("event type: expected %q, got %q", tt.wantType, req.Event.Type)
			}
			switch want := tt.wantPayload.(type) {
			case map[string]any:
				got, ok := req.Event.Payload.(map[string]any)
				if !ok || got["size"] != want["size"] {
					t.Errorf("payload: expected %v, got %v", want, req.Event.Payload)
				}
			default:
				if req.Event.Payload != tt.wantPayload {
					t.Errorf("payload: expected %v, got %v", tt.wantPayload, req.Event.Payload)
				}
			}
		})
	}
}

func TestTextHandler_InputRetriesOnBadLine(t *testing.T) {
	// The first line is invalid UTF-8; the handler should complain and move
	// on to the next one.
	input := strings.NewReader("\xff\xfe\nok\n")
	var out bytes.Buffer
	h := NewTextHandler(input, &out, WithPrompt(""))

	req, err := h.Input(context.Background())
	if err != nil {
		t.Fatalf("Input: %v", err)
	}
	if req.Event.Type != "ok" {
		t.Errorf("expected the second line, got %+v", req)
	}
	if !strings.Contains(out.String(), "try again") {
		t.Errorf("expected a retry message, got %q", out.String())
	}
}

func TestTextHandler_InputEOF(t *testing.T) {
	h := NewTextHandler(strings.NewReader(""), io.Discard, WithPrompt(""))

	_, err := h.Input(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestTextHandler_InputHonorsContext(t *testing.T) {
	// A reader that never delivers a line.
	blocked, _ := io.Pipe()
	defer blocked.Close()
	h := NewTextHandler(blocked, io.Discard, WithPrompt(""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Input(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTextHandler_OutputRenderer(t *testing.T) {
	var out bytes.Buffer
	h := NewTextHandler(strings.NewReader(""), &out, WithTextRenderer(func(s string) (string, error) {
		return strings.ToUpper(s), nil
	}))

	if err := h.Output(context.Background(), "shipped"); err != nil {
		t.Fatalf("Output: %v", err)
	}
	if got := out.String(); got != "SHIPPED\n" {
		t.Errorf("expected rendered output, got %q", got)
	}
}

func TestTextHandler_Confirm(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{"Yes", "y\n", true},
		{"Yes Word", "yes\n", true},
		{"No", "n\n", false},
		{"Default Deny", "\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := NewTextHandler(strings.NewReader(tt.answer), &out)

			got, err := h.Confirm(context.Background(), "discard the future?")
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v for %q", tt.want, tt.answer)
			}
			if !strings.Contains(out.String(), "discard the future? [y/N]") {
				t.Errorf("prompt missing from output: %q", out.String())
			}
		})
	}
}
