package domain

import "context"

// YieldKind discriminates the closed yield protocol. A body program may emit
// exactly these two signals; anything else is a protocol violation.
type YieldKind string

const (
	YieldReceive YieldKind = "receive" // Ready for external input; becomes a history entry
	YieldSend    YieldKind = "send"    // Outbound effect, forwarded to the driver's sink
)

// Sink receives "send" payloads from running branches. Within one branch the
// sink is invoked synchronously and in program order; across concurrently
// running branches no ordering is guaranteed.
type Sink func(ctx context.Context, payload any)

// BranchHook is an optional callback attached to a history entry via the
// receive yield that created it. The driver invokes it with its sink when the
// cursor moves across the entry, so hooks can emit compensating effects.
type BranchHook func(ctx context.Context, sink Sink)

// Unlimited disables admission bounding when used as a concurrency limit.
const Unlimited = -1

// ReceiveParams configure the history entry a receive yield produces.
type ReceiveParams struct {
	// Limit bounds how many in-flight branches may fork from the new entry.
	// nil inherits the forked-from entry's limit; Unlimited removes the
	// bound; 0 admits nothing.
	Limit *int

	// Undo and Redo run when the history cursor steps backward over, or
	// forward onto, the entry.
	Undo BranchHook
	Redo BranchHook
}

// Yield is one emission from a body program.
type Yield struct {
	Kind    YieldKind
	Params  ReceiveParams
	Payload any
}

// Receive builds a receive yield with the given entry parameters.
func Receive(params ReceiveParams) Yield {
	return Yield{Kind: YieldReceive, Params: params}
}

// Send builds a send yield carrying payload to the sink.
func Send(payload any) Yield {
	return Yield{Kind: YieldSend, Payload: payload}
}

// Limit is a convenience for populating ReceiveParams.Limit.
func Limit(n int) *int {
	return &n
}

// StepKind classifies the result of one engine resumption.
type StepKind string

const (
	StepYielded StepKind = "yielded" // Suspended again at a yield point
	StepDone    StepKind = "done"    // Body returned; engine is terminal
	StepErrored StepKind = "errored" // Body failed; engine is terminal
)

// StepResult is the tagged outcome of Resume or ThrowInto.
type StepResult struct {
	Kind  StepKind
	Yield Yield // set when Kind == StepYielded
	Value any   // set when Kind == StepDone
	Err   error // set when Kind == StepErrored
}
