package domain

import (
	"context"
	"time"
)

// HookEventType categorizes lifecycle events emitted by a driver.
type HookEventType string

const (
	HookDispatch  HookEventType = "dispatch"
	HookDrop      HookEventType = "drop"
	HookSend      HookEventType = "send"
	HookBranch    HookEventType = "branch"
	HookBranchEnd HookEventType = "branch_end"
	HookNavigate  HookEventType = "navigate"
)

// HookEventBase contains common fields for all lifecycle events.
type HookEventBase struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      HookEventType `json:"type"`
}

// DispatchEvent describes an event entering (or being dropped by) a driver.
type DispatchEvent struct {
	HookEventBase
	Label string `json:"label"`
	// Index is the cursor position the event was dispatched against.
	Index int `json:"index"`
}

// SendEvent describes a payload forwarded to the sink.
type SendEvent struct {
	HookEventBase
	Label   string `json:"label"`
	Payload any    `json:"payload,omitempty"`
}

// BranchEvent describes a new history entry created by a receive yield.
type BranchEvent struct {
	HookEventBase
	Label string `json:"label"`
	Index int    `json:"index"`
	Limit int    `json:"limit"`
}

// BranchEndEvent describes a branch that terminated without reaching a new
// receive point.
type BranchEndEvent struct {
	HookEventBase
	Label   string `json:"label"`
	Errored bool   `json:"errored,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// NavigationEvent describes a cursor movement through history.
type NavigationEvent struct {
	HookEventBase
	Direction string `json:"direction"` // "undo" or "redo"
	FromIndex int    `json:"from_index"`
	ToIndex   int    `json:"to_index"`
	Label     string `json:"label"`
}

// LifecycleHooks defines callbacks for driver observability. All fields are
// optional; the driver invokes set hooks synchronously, so implementations
// should be fast and must not call back into the driver.
type LifecycleHooks struct {
	OnDispatch  func(context.Context, *DispatchEvent)
	OnDrop      func(context.Context, *DispatchEvent)
	OnSend      func(context.Context, *SendEvent)
	OnBranch    func(context.Context, *BranchEvent)
	OnBranchEnd func(context.Context, *BranchEndEvent)
	OnNavigate  func(context.Context, *NavigationEvent)
}
