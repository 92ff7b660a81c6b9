package domain

// Position is an opaque program-counter-like marker into a body program.
// Programs define their own position vocabulary; the runtime only stores and
// compares positions, never interprets them.
type Position string

// SignalKind classifies the signal a frame injects on its next resumption.
type SignalKind string

const (
	SignalNone   SignalKind = "none"   // Plain resume with an input value
	SignalThrow  SignalKind = "throw"  // Deliver an error at the suspension point
	SignalReturn SignalKind = "return" // Force early completion with a value
)

// PendingSignal is stored on a frame and consumed by the next resume.
// It is pure data: errors are carried as messages so frames stay
// serializable. The engine reconstructs an error value on delivery.
type PendingSignal struct {
	Kind  SignalKind `json:"kind"`
	Value any        `json:"value,omitempty"`
	Error string     `json:"error,omitempty"`
}

// None reports whether no signal is pending.
func (p PendingSignal) None() bool {
	return p.Kind == "" || p.Kind == SignalNone
}

// Locals holds a body program's variable state by identifier.
type Locals map[string]any

// Clone returns a structurally independent copy of the locals.
//
// Values are deep-copied along the JSON shape: nested map[string]any and
// []any are duplicated recursively, scalars are copied by value. Values
// outside that shape (pointers, funcs, caller-defined structs) are treated
// as externally-owned references and shared between clones; a body program
// that mutates such a value through one branch will observe the mutation in
// its siblings.
func (l Locals) Clone() Locals {
	if l == nil {
		return nil
	}
	out := make(Locals, len(l))
	for k, v := range l {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = deepCopyValue(e)
		}
		return out
	case Locals:
		return map[string]any(tv.Clone())
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(tv))
		copy(out, tv)
		return out
	default:
		// Scalars copy by value; anything else is externally owned.
		return v
	}
}

// Frame is the suspension snapshot of one coroutine: where the body is
// paused, its variable state, and any signal queued for the next resume.
//
// A frame is treated as immutable once captured. The engine never hands out
// aliases of a live frame; Clone is the only sanctioned way to duplicate one.
type Frame struct {
	Position Position      `json:"position"`
	Locals   Locals        `json:"locals"`
	Pending  PendingSignal `json:"pending"`
}

// NewFrame returns a fresh frame at the given entry position with empty
// locals and no pending signal.
func NewFrame(pos Position) *Frame {
	return &Frame{
		Position: pos,
		Locals:   make(Locals),
		Pending:  PendingSignal{Kind: SignalNone},
	}
}

// Clone returns a structurally independent copy of the frame. See
// Locals.Clone for the copy semantics of values.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	return &Frame{
		Position: f.Position,
		Locals:   f.Locals.Clone(),
		Pending:  PendingSignal{Kind: f.Pending.Kind, Value: deepCopyValue(f.Pending.Value), Error: f.Pending.Error},
	}
}
