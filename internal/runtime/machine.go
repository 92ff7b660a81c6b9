// Package runtime implements the coroutine machine: the step loop that
// executes a body program between suspension points, validates the yield
// protocol, and clones suspended frames into independent branches.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Machine executes one body program cooperatively. A machine owns exactly one
// frame and shares its program (immutable) with every clone. Resumption is
// strictly sequential per machine: the state field, guarded by mu, rejects a
// second in-flight step instead of racing it.
type Machine struct {
	program domain.Program
	logger  *slog.Logger

	mu    sync.Mutex
	state domain.EngineState
	frame *domain.Frame
	value any
	err   error
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger used for step tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a machine suspended at the program's entry position.
func New(program domain.Program, opts ...Option) *Machine {
	m := &Machine{
		program: program,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		state:   domain.StateSuspended,
		frame:   domain.NewFrame(program.Entry()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore creates a machine suspended at the given frame. The frame is
// adopted as-is; callers that retain a reference must pass a clone.
func Restore(program domain.Program, frame *domain.Frame, opts ...Option) *Machine {
	m := New(program, opts...)
	m.frame = frame
	return m
}

// Program returns the shared body program.
func (m *Machine) Program() domain.Program {
	return m.program
}

// State returns the current lifecycle state.
func (m *Machine) State() domain.EngineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Result returns the terminal return value and error. Both are zero until
// the machine completes or fails.
func (m *Machine) Result() (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.err
}

// Resume transitions Suspended -> Running -> {Suspended|Completed|Failed},
// delivering input at the suspension point. If the frame carries a pending
// signal (restored snapshots), the signal takes precedence over input.
// Calling Resume on a machine that is not suspended returns ErrInvalidState.
func (m *Machine) Resume(ctx context.Context, input any) (domain.StepResult, error) {
	frame, err := m.begin()
	if err != nil {
		return domain.StepResult{}, err
	}

	in := domain.Input{Value: input}
	switch frame.Pending.Kind {
	case domain.SignalThrow:
		in = domain.Input{Err: errors.New(frame.Pending.Error)}
	case domain.SignalReturn:
		return m.complete(frame.Pending.Value), nil
	}

	return m.run(ctx, frame, in), nil
}

// ThrowInto resumes the machine by delivering err at the suspension point
// instead of a value. The body observes it as Input.Err and may recover or
// propagate it, in which case the machine fails.
func (m *Machine) ThrowInto(ctx context.Context, throw error) (domain.StepResult, error) {
	frame, err := m.begin()
	if err != nil {
		return domain.StepResult{}, err
	}
	return m.run(ctx, frame, domain.Input{Err: throw}), nil
}

// Clone returns an independent machine suspended at a deep copy of the
// current frame, sharing only the immutable program. Clone is defined only
// while the machine is suspended; a running machine has no stable frame and
// a terminal one has none at all.
//
// Cloning duplicates state, not effects: side effects the body performed
// before the suspension point are not tracked, and a cloned branch that
// re-runs non-idempotent effects does so on the caller's responsibility.
func (m *Machine) Clone() (*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateSuspended {
		return nil, fmt.Errorf("%w (state %s)", domain.ErrCloneWhileRunning, m.state)
	}

	return &Machine{
		program: m.program,
		logger:  m.logger,
		state:   domain.StateSuspended,
		frame:   m.frame.Clone(),
	}, nil
}

// Snapshot returns a deep copy of the suspended frame for persistence.
func (m *Machine) Snapshot() (*domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateSuspended {
		return nil, fmt.Errorf("%w (state %s)", domain.ErrInvalidState, m.state)
	}
	return m.frame.Clone(), nil
}

// begin claims the machine for one resumption, detaching the frame.
func (m *Machine) begin() (*domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateSuspended {
		return nil, fmt.Errorf("%w (state %s)", domain.ErrInvalidState, m.state)
	}
	m.state = domain.StateRunning
	frame := m.frame
	m.frame = nil
	return frame, nil
}

// run executes body segments from the frame's position until the body
// yields, returns, or errors. Jumps continue within the same resumption.
func (m *Machine) run(ctx context.Context, frame *domain.Frame, in domain.Input) domain.StepResult {
	pos := frame.Position
	locals := frame.Locals
	if locals == nil {
		locals = make(domain.Locals)
	}

	for {
		outcome, err := m.program.Step(ctx, pos, locals, in)
		if err != nil {
			return m.fail(err)
		}

		switch outcome.Kind {
		case domain.OutcomeJump:
			if outcome.Next == "" {
				return m.fail(fmt.Errorf("%w: jump without a target position", domain.ErrProtocolViolation))
			}
			pos = outcome.Next
			in = domain.Input{}

		case domain.OutcomeReturn:
			return m.complete(outcome.Value)

		case domain.OutcomeYield:
			if err := validateYield(outcome); err != nil {
				return m.fail(err)
			}
			m.suspend(&domain.Frame{
				Position: outcome.Next,
				Locals:   locals,
				Pending:  domain.PendingSignal{Kind: domain.SignalNone},
			})
			m.logger.Debug("machine suspended",
				"program", m.program.Name(),
				"position", outcome.Next,
				"yield", outcome.Yield.Kind)
			return domain.StepResult{Kind: domain.StepYielded, Yield: outcome.Yield}

		default:
			return m.fail(fmt.Errorf("%w: unknown outcome kind %q", domain.ErrProtocolViolation, outcome.Kind))
		}
	}
}

func validateYield(outcome domain.Outcome) error {
	if outcome.Next == "" {
		return fmt.Errorf("%w: yield without a resume position", domain.ErrProtocolViolation)
	}
	switch outcome.Yield.Kind {
	case domain.YieldSend:
		return nil
	case domain.YieldReceive:
		if limit := outcome.Yield.Params.Limit; limit != nil && *limit < domain.Unlimited {
			return fmt.Errorf("%w: receive limit %d", domain.ErrProtocolViolation, *limit)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown yield kind %q", domain.ErrProtocolViolation, outcome.Yield.Kind)
	}
}

func (m *Machine) suspend(frame *domain.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.StateSuspended
	m.frame = frame
}

func (m *Machine) complete(value any) domain.StepResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.StateCompleted
	m.value = value
	return domain.StepResult{Kind: domain.StepDone, Value: value}
}

func (m *Machine) fail(err error) domain.StepResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.StateFailed
	m.err = err
	m.logger.Debug("machine failed", "program", m.program.Name(), "err", err)
	return domain.StepResult{Kind: domain.StepErrored, Err: err}
}
