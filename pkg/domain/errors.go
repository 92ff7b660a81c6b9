package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when Resume or ThrowInto is called on a
// terminal (completed or failed) engine.
var ErrInvalidState = errors.New("engine is not suspended")

// ErrCloneWhileRunning is returned when Clone is called on an engine that is
// not suspended; a running engine has no well-defined frame to copy.
var ErrCloneWhileRunning = errors.New("engine has no suspended frame to clone")

// ErrProtocolViolation is returned when a body yields a value outside the
// closed receive/send protocol.
var ErrProtocolViolation = errors.New("yield outside the receive/send protocol")

// ErrAtStart is returned by undo when the cursor is already at the root.
var ErrAtStart = errors.New("already at start of history")

// ErrAtEnd is returned by redo when the cursor is already at the newest entry.
var ErrAtEnd = errors.New("already at end of history")

// ErrTimelineNotFound is returned when a timeline ID cannot be found in a store.
var ErrTimelineNotFound = errors.New("timeline not found")

// ErrProgramNotFound is returned when a program name cannot be resolved by a
// loader or registry.
var ErrProgramNotFound = errors.New("program not found")

// BranchError wraps an error raised by a body program during dispatch. The
// failure is local to the branch: history and sibling branches are unaffected
// and the driver stays usable.
type BranchError struct {
	// Label identifies the event whose branch failed.
	Label string
	Err   error
}

func (e *BranchError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("branch failed: %v", e.Err)
	}
	return fmt.Sprintf("branch %q failed: %v", e.Label, e.Err)
}

func (e *BranchError) Unwrap() error {
	return e.Err
}
