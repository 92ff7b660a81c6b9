package domain

// EngineState describes the lifecycle position of a coroutine engine.
//
// Engines are created Suspended at their program's entry, pass through
// Running while a resumption executes body segments, and settle back into
// Suspended at the next yield or into one of the terminal states. Terminal
// states are absorbing.
type EngineState string

const (
	StateSuspended EngineState = "suspended"
	StateRunning   EngineState = "running"
	StateCompleted EngineState = "completed"
	StateFailed    EngineState = "failed"
)

// Terminal reports whether the state absorbs all further transitions.
func (s EngineState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
