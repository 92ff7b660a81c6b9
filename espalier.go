package espalier

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/domain"
)

// Engine is the high-level entry point for a single coroutine instance.
// It wraps the internal runtime and provides a simplified API for consumers
// that want to drive one computation directly, without timeline management.
// For branching history and undo/redo, use Driver.
type Engine struct {
	machine *runtime.Machine
	logger  *slog.Logger
	Name    string
}

// options carries configuration shared by New and NewDriver.
type options struct {
	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

// Option defines a functional option for configuring an Engine or a Driver.
type Option func(*options)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Hooks are consumed by
// Driver; a plain Engine ignores them.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

func buildOptions(opts []Option) *options {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		// Default to a silent logger. Library consumers opt into logging.
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return cfg
}

// New initialises an Engine suspended at the program's entry position.
func New(program domain.Program, opts ...Option) (*Engine, error) {
	if program == nil {
		return nil, fmt.Errorf("program is required")
	}
	cfg := buildOptions(opts)
	logger := cfg.logger.With("program", program.Name())

	return &Engine{
		machine: runtime.New(program, runtime.WithLogger(logger)),
		logger:  logger,
		Name:    program.Name(),
	}, nil
}

// NewFromFrame initialises an Engine suspended at a previously captured
// frame, typically one taken from a timeline snapshot.
func NewFromFrame(program domain.Program, frame *domain.Frame, opts ...Option) (*Engine, error) {
	if program == nil {
		return nil, fmt.Errorf("program is required")
	}
	if frame == nil {
		return nil, fmt.Errorf("frame is required")
	}
	cfg := buildOptions(opts)
	logger := cfg.logger.With("program", program.Name())

	return &Engine{
		machine: runtime.Restore(program, frame.Clone(), runtime.WithLogger(logger)),
		logger:  logger,
		Name:    program.Name(),
	}, nil
}

// Resume delivers a value to the suspended coroutine and runs it until the
// next suspension point or termination.
func (e *Engine) Resume(ctx context.Context, input any) (domain.StepResult, error) {
	return e.machine.Resume(ctx, input)
}

// ThrowInto delivers an error to the suspended coroutine. The program sees
// it as the Err field of its input and may recover or terminate.
func (e *Engine) ThrowInto(ctx context.Context, throw error) (domain.StepResult, error) {
	return e.machine.ThrowInto(ctx, throw)
}

// Clone returns an independent copy of a suspended engine. The copy resumes
// from the same frame; the original is untouched.
func (e *Engine) Clone() (*Engine, error) {
	m, err := e.machine.Clone()
	if err != nil {
		return nil, err
	}
	return &Engine{machine: m, logger: e.logger, Name: e.Name}, nil
}

// State reports the engine lifecycle state.
func (e *Engine) State() domain.EngineState {
	return e.machine.State()
}

// Snapshot captures the suspended frame as plain data.
func (e *Engine) Snapshot() (*domain.Frame, error) {
	return e.machine.Snapshot()
}

// Result returns the final value or error once the engine has terminated.
func (e *Engine) Result() (any, error) {
	return e.machine.Result()
}

// Program returns the program this engine runs.
func (e *Engine) Program() domain.Program {
	return e.machine.Program()
}
