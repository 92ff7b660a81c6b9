package domain

import "context"

// Input carries what a resumption injects into a body segment: either a
// value (plain resume) or an error (throw delivered at the suspension point).
// At most one of the two is set.
type Input struct {
	Value any
	Err   error
}

// OutcomeKind classifies what a body segment does next.
type OutcomeKind string

const (
	OutcomeYield  OutcomeKind = "yield"  // Suspend, emitting a Yield; resume at Next
	OutcomeJump   OutcomeKind = "jump"   // Continue at Next without suspending
	OutcomeReturn OutcomeKind = "return" // Complete the body with Value
)

// Outcome is the result of executing one body segment.
type Outcome struct {
	Kind  OutcomeKind
	Yield Yield
	Next  Position
	Value any
}

// YieldOutcome suspends the body with the given yield, to resume at next.
func YieldOutcome(y Yield, next Position) Outcome {
	return Outcome{Kind: OutcomeYield, Yield: y, Next: next}
}

// JumpOutcome continues execution at next without suspending.
func JumpOutcome(next Position) Outcome {
	return Outcome{Kind: OutcomeJump, Next: next}
}

// ReturnOutcome completes the body with the given return value.
func ReturnOutcome(v any) Outcome {
	return Outcome{Kind: OutcomeReturn, Value: v}
}

// Program is the immutable body logic executed by a coroutine engine.
//
// A program is shared by reference across every clone of an engine and must
// therefore be read-only: all mutable state belongs in the frame's locals,
// which the runtime owns and copies on fork. Step receives the locals map for
// in-place mutation during the segment; the runtime captures it back into the
// frame when the segment suspends.
//
// Name identifies the program for registries and persisted snapshots. Entry
// is the position a fresh frame starts at.
type Program interface {
	Name() string
	Entry() Position
	Step(ctx context.Context, pos Position, locals Locals, in Input) (Outcome, error)
}
