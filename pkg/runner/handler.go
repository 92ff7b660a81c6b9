package runner

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// Command is a timeline instruction carried by a Request instead of an event.
type Command string

const (
	// CommandNone marks a Request that carries an event.
	CommandNone Command = ""
	// CommandUndo moves the cursor one entry back.
	CommandUndo Command = "undo"
	// CommandRedo moves the cursor one entry forward.
	CommandRedo Command = "redo"
	// CommandLabels reports the timeline without changing it.
	CommandLabels Command = "labels"
	// CommandQuit ends the session.
	CommandQuit Command = "quit"
)

// Request is one parsed user instruction: either a command or an event to
// dispatch.
type Request struct {
	Command Command
	Event   domain.Event
}

// Status describes the timeline after an operation.
type Status struct {
	Labels  []string `json:"labels"`
	Cursor  int      `json:"cursor"`
	Current string   `json:"current,omitempty"`
}

// ContentRenderer transforms a payload's text before it is shown to the
// user. This allows TUI rendering (markdown to ANSI) without coupling the
// runner to a presentation library.
type ContentRenderer func(string) (string, error)

// IOHandler defines the strategy for interacting with the user. This allows
// switching between text (CLI/TUI) and JSON (structured) modes.
type IOHandler interface {
	// Output presents one payload the program sent.
	Output(ctx context.Context, payload any) error

	// Input reads and parses the next request from the user.
	Input(ctx context.Context) (Request, error)

	// SystemOutput presents a meta message (status updates, refusals),
	// distinct from program output.
	SystemOutput(ctx context.Context, msg string) error

	// Status reports the timeline shape after a successful mutation.
	Status(ctx context.Context, status Status) error

	// Confirm asks the user a yes/no question.
	Confirm(ctx context.Context, prompt string) (bool, error)
}
