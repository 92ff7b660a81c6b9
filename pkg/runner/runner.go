package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"log/slog"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Runner drives one exploration session over a program. Each request either
// dispatches an event into the timeline or navigates it; after every
// successful mutation the timeline is persisted (when a store is configured)
// and the handler receives a status report.
//
// The runner holds a single live driver for the whole session, so undo and
// redo callbacks registered by the program keep firing, unlike server-side
// sessions that rehydrate drivers per request.
type Runner struct {
	// Handler is the IO strategy. If nil, a TextHandler on stdin/stdout is
	// used.
	Handler IOHandler

	// Interceptor is the dispatch policy. If nil, interactive sessions
	// confirm truncating dispatches and headless ones auto-approve.
	Interceptor EventInterceptor

	// Logger is used for internal debug logging. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// Store persists the timeline after every mutation. If nil, the session
	// is ephemeral.
	Store     ports.TimelineStore
	SessionID string

	Headless bool
	Renderer ContentRenderer

	driverOpts []espalier.Option
}

// NewRunner creates a runner with the given options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the session loop until the user quits, input ends, the
// context is cancelled, or a watched signal arrives. The timeline is restored
// from the store when the session ID already exists there.
func (r *Runner) Run(ctx context.Context, program domain.Program) error {
	handler := r.resolveHandler()
	interceptor := r.resolveInterceptor(handler)

	signals := NewSignalManager()
	defer signals.Stop()

	sink := func(ctx context.Context, payload any) {
		if err := handler.Output(ctx, payload); err != nil {
			r.Logger.Warn("output failed", "err", err)
		}
	}

	driver, err := r.resolveDriver(ctx, program, sink)
	if err != nil {
		return err
	}

	// Saving up front reserves the session ID and forces the root
	// computation to run, so a program that fails before its first receive
	// point errors out here.
	if err := r.save(ctx, driver); err != nil {
		return err
	}

	if !r.Headless {
		_ = handler.SystemOutput(ctx, fmt.Sprintf("exploring %q; :undo, :redo, :labels, :quit", program.Name()))
	}

	for {
		proceed, err := r.step(ctx, signals, handler, interceptor, driver)
		if !proceed || err != nil {
			return err
		}
	}
}

// step handles one request. It reports false when the session should end:
// quit command, exhausted input, cancellation or signal.
func (r *Runner) step(ctx context.Context, signals *SignalManager, handler IOHandler, interceptor EventInterceptor, driver *espalier.Driver) (bool, error) {
	if ctx.Err() != nil || signals.Context().Err() != nil {
		return false, nil
	}

	// The read has to unblock on the caller's context too, not just on a
	// signal; watch mode cancels it to reload the script mid-prompt.
	runCtx, stop := raceContexts(ctx, signals.Context())
	defer stop()

	req, err := handler.Input(runCtx)
	if err != nil {
		signals.CheckRace()
		if runCtx.Err() != nil || errors.Is(err, context.Canceled) {
			r.Logger.Debug("session interrupted")
			return false, nil
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("input error: %w", err)
	}

	switch req.Command {
	case CommandQuit:
		return false, nil

	case CommandLabels:
		_ = handler.Status(runCtx, r.status(driver))
		return true, nil

	case CommandUndo:
		if err := driver.Undo(runCtx); err != nil {
			if errors.Is(err, domain.ErrAtStart) {
				_ = handler.SystemOutput(runCtx, "already at the beginning")
				return true, nil
			}
			return false, err
		}

	case CommandRedo:
		if err := driver.Redo(runCtx); err != nil {
			if errors.Is(err, domain.ErrAtEnd) {
				_ = handler.SystemOutput(runCtx, "nothing to redo")
				return true, nil
			}
			return false, err
		}

	case CommandNone:
		truncating := driver.CurrentIndex() < len(driver.Labels())
		allowed, err := interceptor(runCtx, req.Event, truncating)
		if err != nil {
			return false, fmt.Errorf("interceptor error: %w", err)
		}
		if !allowed {
			_ = handler.SystemOutput(runCtx, fmt.Sprintf("event %q denied", req.Event.Type))
			return true, nil
		}

		if err := driver.Dispatch(runCtx, req.Event); err != nil {
			var branchErr *domain.BranchError
			if errors.As(err, &branchErr) {
				// A failed branch leaves no entry; the session
				// continues from where it was.
				_ = handler.SystemOutput(runCtx, fmt.Sprintf("branch %q failed: %v", branchErr.Label, branchErr.Err))
				return true, nil
			}
			return false, fmt.Errorf("dispatch error: %w", err)
		}

	default:
		_ = handler.SystemOutput(runCtx, fmt.Sprintf("unknown command %q", req.Command))
		return true, nil
	}

	if err := r.save(runCtx, driver); err != nil {
		return false, fmt.Errorf("persistence error: %w", err)
	}
	_ = handler.Status(runCtx, r.status(driver))
	return true, nil
}

// raceContexts derives a context that is cancelled as soon as either input
// is done.
func raceContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(a)
	unhook := context.AfterFunc(b, cancel)
	return merged, func() {
		unhook()
		cancel()
	}
}

// resolveHandler ensures a valid IOHandler is set, memoized so repeated Run
// calls share one input pump.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	opts := []TextHandlerOption{WithTextRenderer(r.Renderer)}
	if r.Headless {
		opts = append(opts, WithPrompt(""))
	}
	r.Handler = NewTextHandler(os.Stdin, os.Stdout, opts...)
	return r.Handler
}

func (r *Runner) resolveInterceptor(handler IOHandler) EventInterceptor {
	if r.Interceptor != nil {
		return r.Interceptor
	}
	if r.Headless {
		return AutoApproveInterceptor()
	}
	return ConfirmationInterceptor(handler)
}

// resolveDriver restores the session's timeline when the store has one, and
// starts fresh otherwise.
func (r *Runner) resolveDriver(ctx context.Context, program domain.Program, sink domain.Sink) (*espalier.Driver, error) {
	if r.Store != nil && r.SessionID != "" {
		snap, err := r.Store.Load(ctx, r.SessionID)
		if err == nil {
			r.Logger.Debug("timeline restored", "session_id", r.SessionID, "entries", len(snap.Entries))
			return espalier.RestoreDriver(program, snap, sink, r.driverOpts...)
		}
		if !errors.Is(err, domain.ErrTimelineNotFound) {
			return nil, err
		}
	}
	return espalier.NewDriver(program, sink, r.driverOpts...)
}

func (r *Runner) save(ctx context.Context, driver *espalier.Driver) error {
	if r.Store == nil || r.SessionID == "" {
		return nil
	}
	snap, err := driver.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := r.Store.Save(ctx, r.SessionID, snap); err != nil {
		return err
	}
	r.Logger.Debug("timeline saved", "session_id", r.SessionID, "cursor", snap.Cursor)
	return nil
}

func (r *Runner) status(driver *espalier.Driver) Status {
	return Status{
		Labels:  driver.Labels(),
		Cursor:  driver.CurrentIndex(),
		Current: driver.Current(),
	}
}
