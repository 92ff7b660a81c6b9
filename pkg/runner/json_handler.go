package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// JSONHandler implements the IOHandler interface for structured JSON-lines
// communication. Each input line is one request object:
//
//	{"type": "order-pizza", "payload": {"size": "large"}}
//	{"command": "undo"}
//
// and each output line is one envelope tagged with its kind ("send",
// "system", "status", "confirm").
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO. A nil reader or writer falls
// back to stdin and stdout.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

type requestEnvelope struct {
	Command string          `json:"command,omitempty"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Confirm *bool           `json:"confirm,omitempty"`
}

func (h *JSONHandler) Output(ctx context.Context, payload any) error {
	return h.Encoder.Encode(map[string]any{
		"type":    "send",
		"payload": payload,
	})
}

func (h *JSONHandler) Input(ctx context.Context) (Request, error) {
	env, err := h.readEnvelope()
	if err != nil {
		return Request{}, err
	}

	if env.Command != "" {
		return Request{Command: Command(env.Command)}, nil
	}
	if env.Type == "" {
		return Request{}, fmt.Errorf("invalid request: need a command or an event type")
	}

	var payload any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return Request{}, fmt.Errorf("invalid payload for %q: %w", env.Type, err)
		}
	}
	return Request{Event: domain.NewEvent(env.Type, payload)}, nil
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(map[string]any{
		"type":    "system",
		"message": msg,
	})
}

func (h *JSONHandler) Status(ctx context.Context, status Status) error {
	return h.Encoder.Encode(map[string]any{
		"type":   "status",
		"status": status,
	})
}

// Confirm emits a confirm envelope and expects {"confirm": true} (or false)
// on the next line. Anything else counts as a refusal.
func (h *JSONHandler) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := h.Encoder.Encode(map[string]any{
		"type":   "confirm",
		"prompt": prompt,
	}); err != nil {
		return false, err
	}

	env, err := h.readEnvelope()
	if err != nil {
		return false, err
	}
	return env.Confirm != nil && *env.Confirm, nil
}

// readEnvelope reads lines until a non-empty one arrives and decodes it.
func (h *JSONHandler) readEnvelope() (requestEnvelope, error) {
	var env requestEnvelope
	for {
		line, err := h.Reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if err != nil {
				return env, err
			}
			continue
		}
		if unmarshalErr := json.Unmarshal([]byte(trimmed), &env); unmarshalErr != nil {
			return env, fmt.Errorf("invalid request line: %w", unmarshalErr)
		}
		return env, nil
	}
}
