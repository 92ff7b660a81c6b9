package espalier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/aretw0/espalier/internal/branch"
	"github.com/aretw0/espalier/internal/clock"
	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/internal/tracing"
	"github.com/aretw0/espalier/pkg/domain"
)

// Driver owns a branching timeline over one program. Each dispatched event
// forks the current timeline entry, runs the fork until its next receive
// point, and records the result as a new entry. Undo and Redo move a cursor
// through the recorded entries without discarding them; dispatching after an
// undo replaces the abandoned future.
//
// A Driver is safe for concurrent use. Program bodies run outside the
// driver's lock, so slow branches do not block navigation or other
// dispatches.
type Driver struct {
	program domain.Program
	sink    domain.Sink
	logger  *slog.Logger
	hooks   domain.LifecycleHooks

	mu       sync.Mutex
	history  *branch.History
	started  bool
	startErr error
}

// NewDriver creates a driver for the given program. The sink receives every
// payload the program sends; it may be nil to discard output.
//
// The root computation is started lazily: the first call that needs the
// timeline runs the program up to its first receive point. A program that
// terminates before ever receiving leaves the driver permanently failed,
// and every subsequent call reports that start error.
func NewDriver(program domain.Program, sink domain.Sink, opts ...Option) (*Driver, error) {
	if program == nil {
		return nil, fmt.Errorf("program is required")
	}
	cfg := buildOptions(opts)

	return &Driver{
		program: program,
		sink:    sink,
		logger:  cfg.logger.With("program", program.Name()),
		hooks:   cfg.hooks,
	}, nil
}

// RestoreDriver rebuilds a driver from a previously captured snapshot. The
// program must be the one the snapshot was taken from; entry frames are
// adopted as-is. Undo/redo callbacks are behavior, not data, so they are not
// part of a snapshot and do not survive restoration.
func RestoreDriver(program domain.Program, snap *domain.TimelineSnapshot, sink domain.Sink, opts ...Option) (*Driver, error) {
	if program == nil {
		return nil, fmt.Errorf("program is required")
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot is required")
	}
	if snap.Program != program.Name() {
		return nil, fmt.Errorf("snapshot belongs to program %q, not %q", snap.Program, program.Name())
	}
	cfg := buildOptions(opts)
	logger := cfg.logger.With("program", program.Name())

	nodes := make([]*branch.Node, 0, len(snap.Entries))
	for i, entry := range snap.Entries {
		if entry.Frame == nil {
			return nil, fmt.Errorf("snapshot entry %d has no frame", i)
		}
		m := runtime.Restore(program, entry.Frame.Clone(), runtime.WithLogger(logger))
		nodes = append(nodes, branch.NewNode(m, entry.Label, entry.Limit, nil, nil))
	}

	history, err := branch.Restore(nodes, snap.Cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	return &Driver{
		program: program,
		sink:    sink,
		logger:  logger,
		hooks:   cfg.hooks,
		history: history,
		started: true,
	}, nil
}

// ensureStarted runs the root computation up to its first receive point,
// exactly once. The resulting suspension becomes history entry zero.
func (d *Driver) ensureStarted(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return d.startErr
	}
	d.started = true

	machine := runtime.New(d.program, runtime.WithLogger(d.logger))

	var input any
	for {
		res, err := machine.Resume(ctx, input)
		if err != nil {
			d.startErr = fmt.Errorf("start %q: %w", d.program.Name(), err)
			return d.startErr
		}

		switch res.Kind {
		case domain.StepYielded:
			if res.Yield.Kind == domain.YieldSend {
				d.send(ctx, "", res.Yield.Payload)
				input = nil
				continue
			}
			params := res.Yield.Params
			root := branch.NewNode(machine, "", rootLimit(params.Limit), d.bindHook(params.Undo), d.bindHook(params.Redo))
			d.history = branch.NewHistory(root)
			d.logger.Debug("root suspended", "limit", root.Limit())
			return nil

		case domain.StepErrored:
			d.startErr = fmt.Errorf("start %q: %w", d.program.Name(), res.Err)
			return d.startErr

		default:
			d.startErr = fmt.Errorf("start %q: program returned before its first receive point", d.program.Name())
			return d.startErr
		}
	}
}

// Dispatch delivers an event to the current timeline entry.
//
// If the entry's branch budget is exhausted the event is dropped silently:
// Dispatch returns nil and the timeline is unchanged (the OnDrop hook still
// fires). Otherwise the entry's engine is forked and resumed with the event.
// Sends go to the sink; a receive point pushes a new entry labeled with the
// event type, truncating any redo-able future. A branch that terminates
// leaves no entry; if it terminated with a program error, Dispatch returns a
// *domain.BranchError and the driver remains usable.
func (d *Driver) Dispatch(ctx context.Context, event domain.Event) error {
	ctx, span := tracing.StartSpan(ctx, "espalier.dispatch", "")
	defer span.End()
	span.WithAttributes(map[string]string{"event.type": event.Type})

	if err := d.ensureStarted(ctx); err != nil {
		span.SetStatus(err)
		return err
	}

	history := d.timeline()
	current := history.Current()
	index := history.Cursor()

	d.emitDispatch(ctx, event.Type, index)

	if !current.Admit() {
		d.logger.Debug("event dropped, branch budget exhausted",
			"event", event.Type, "index", index, "limit", current.Limit())
		d.emitDrop(ctx, event.Type, index)
		span.WithAttributes(map[string]string{"dropped": "true"})
		return nil
	}

	fork, err := current.Fork()
	if err != nil {
		current.Release()
		span.SetStatus(err)
		return fmt.Errorf("fork entry %d: %w", index, err)
	}

	var input any = event
	for {
		res, err := fork.Resume(ctx, input)
		if err != nil {
			current.Release()
			span.SetStatus(err)
			return fmt.Errorf("resume fork of entry %d: %w", index, err)
		}

		switch res.Kind {
		case domain.StepYielded:
			if res.Yield.Kind == domain.YieldSend {
				d.send(ctx, event.Type, res.Yield.Payload)
				input = nil
				continue
			}

			params := res.Yield.Params
			limit := effectiveLimit(current.Limit(), params.Limit)
			node := branch.NewNode(fork, event.Type, limit, d.bindHook(params.Undo), d.bindHook(params.Redo))
			history.Push(node)
			current.Release()

			newIndex := history.Cursor()
			d.logger.Debug("branch recorded",
				"event", event.Type, "index", newIndex, "limit", limit)
			d.emitBranch(ctx, event.Type, newIndex, limit)
			span.WithAttributes(map[string]string{"index": strconv.Itoa(newIndex)})
			return nil

		case domain.StepDone:
			current.Release()
			d.logger.Debug("branch completed without suspending", "event", event.Type)
			d.emitBranchEnd(ctx, event.Type, false, "completed")
			return nil

		case domain.StepErrored:
			current.Release()
			branchErr := &domain.BranchError{Label: event.Type, Err: res.Err}
			d.logger.Warn("branch failed", "event", event.Type, "err", res.Err)
			d.emitBranchEnd(ctx, event.Type, true, res.Err.Error())
			span.SetStatus(branchErr)
			return branchErr

		default:
			current.Release()
			err := fmt.Errorf("%w: unexpected step result %q", domain.ErrProtocolViolation, res.Kind)
			span.SetStatus(err)
			return err
		}
	}
}

// Undo steps the cursor back one entry, invoking that entry's undo callback.
// It returns domain.ErrAtStart when the cursor is already at the root.
func (d *Driver) Undo(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "espalier.undo", "")
	defer span.End()

	if err := d.ensureStarted(ctx); err != nil {
		span.SetStatus(err)
		return err
	}

	history := d.timeline()
	from := history.Cursor()
	node, err := history.Undo(ctx)
	if err != nil {
		span.SetStatus(err)
		return err
	}

	to := history.Cursor()
	d.logger.Debug("undo", "from", from, "to", to, "label", node.Label())
	d.emitNavigate(ctx, "undo", from, to, node.Label())
	return nil
}

// Redo steps the cursor forward one entry, invoking that entry's redo
// callback. It returns domain.ErrAtEnd when there is no future to reapply.
func (d *Driver) Redo(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "espalier.redo", "")
	defer span.End()

	if err := d.ensureStarted(ctx); err != nil {
		span.SetStatus(err)
		return err
	}

	history := d.timeline()
	from := history.Cursor()
	node, err := history.Redo(ctx)
	if err != nil {
		span.SetStatus(err)
		return err
	}

	to := history.Cursor()
	d.logger.Debug("redo", "from", from, "to", to, "label", node.Label())
	d.emitNavigate(ctx, "redo", from, to, node.Label())
	return nil
}

// Program returns the name of the program this driver runs.
func (d *Driver) Program() string {
	return d.program.Name()
}

// Labels returns the event labels of all history entries after the root, in
// order, regardless of cursor position. A driver that has not started yet
// reports no labels.
func (d *Driver) Labels() []string {
	if h := d.timeline(); h != nil {
		return h.Labels()
	}
	return nil
}

// Current returns the label of the entry under the cursor. The root entry
// has the empty label.
func (d *Driver) Current() string {
	if h := d.timeline(); h != nil {
		return h.Current().Label()
	}
	return ""
}

// CurrentIndex returns the cursor position; zero is the root entry.
func (d *Driver) CurrentIndex() int {
	if h := d.timeline(); h != nil {
		return h.Cursor()
	}
	return 0
}

// Snapshot captures the full timeline as plain data: every entry's frame,
// label and branch budget, plus the cursor. The driver keeps running; the
// snapshot is independent of it. Undo/redo callbacks and in-flight branch
// admissions are not captured.
func (d *Driver) Snapshot(ctx context.Context) (*domain.TimelineSnapshot, error) {
	if err := d.ensureStarted(ctx); err != nil {
		return nil, err
	}

	entries, cursor := d.timeline().View()

	snap := &domain.TimelineSnapshot{
		Program: d.program.Name(),
		Entries: make([]domain.EntrySnapshot, 0, len(entries)),
		Cursor:  cursor,
		SavedAt: clock.Now(),
	}
	for i, node := range entries {
		frame, err := node.Machine().Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot entry %d: %w", i, err)
		}
		snap.Entries = append(snap.Entries, domain.EntrySnapshot{
			Label: node.Label(),
			Limit: node.Limit(),
			Frame: frame,
		})
	}
	return snap, nil
}

// timeline returns the history under the driver lock. It is nil until the
// root computation has suspended for the first time.
func (d *Driver) timeline() *branch.History {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history
}

// send forwards one payload to the sink, if any.
func (d *Driver) send(ctx context.Context, label string, payload any) {
	if d.sink != nil {
		d.sink(ctx, payload)
	}
	d.emitSend(ctx, label, payload)
}

// bindHook closes a program-supplied branch hook over the driver's sink.
func (d *Driver) bindHook(h domain.BranchHook) func(context.Context) {
	if h == nil {
		return nil
	}
	return func(ctx context.Context) {
		h(ctx, d.sink)
	}
}

// rootLimit resolves the branch budget of the root entry. With no parent to
// inherit from, an absent limit means unlimited.
func rootLimit(requested *int) int {
	if requested == nil {
		return domain.Unlimited
	}
	if *requested < 0 {
		return domain.Unlimited
	}
	return *requested
}

// effectiveLimit resolves the budget of a new entry: nil inherits the parent
// entry's limit, negative means unlimited, and otherwise the stricter of
// parent and requested wins. A child can narrow its inherited budget but
// never widen it.
func effectiveLimit(parent int, requested *int) int {
	if requested == nil {
		return parent
	}
	r := *requested
	if r < 0 {
		r = domain.Unlimited
	}
	if parent == domain.Unlimited {
		return r
	}
	if r == domain.Unlimited {
		return parent
	}
	if r < parent {
		return r
	}
	return parent
}

func hookBase(t domain.HookEventType) domain.HookEventBase {
	return domain.HookEventBase{Timestamp: clock.Now(), Type: t}
}

func (d *Driver) emitDispatch(ctx context.Context, label string, index int) {
	if d.hooks.OnDispatch == nil {
		return
	}
	d.hooks.OnDispatch(ctx, &domain.DispatchEvent{
		HookEventBase: hookBase(domain.HookDispatch),
		Label:         label,
		Index:         index,
	})
}

func (d *Driver) emitDrop(ctx context.Context, label string, index int) {
	if d.hooks.OnDrop == nil {
		return
	}
	d.hooks.OnDrop(ctx, &domain.DispatchEvent{
		HookEventBase: hookBase(domain.HookDrop),
		Label:         label,
		Index:         index,
	})
}

func (d *Driver) emitSend(ctx context.Context, label string, payload any) {
	if d.hooks.OnSend == nil {
		return
	}
	d.hooks.OnSend(ctx, &domain.SendEvent{
		HookEventBase: hookBase(domain.HookSend),
		Label:         label,
		Payload:       payload,
	})
}

func (d *Driver) emitBranch(ctx context.Context, label string, index, limit int) {
	if d.hooks.OnBranch == nil {
		return
	}
	d.hooks.OnBranch(ctx, &domain.BranchEvent{
		HookEventBase: hookBase(domain.HookBranch),
		Label:         label,
		Index:         index,
		Limit:         limit,
	})
}

func (d *Driver) emitBranchEnd(ctx context.Context, label string, errored bool, reason string) {
	if d.hooks.OnBranchEnd == nil {
		return
	}
	d.hooks.OnBranchEnd(ctx, &domain.BranchEndEvent{
		HookEventBase: hookBase(domain.HookBranchEnd),
		Label:         label,
		Errored:       errored,
		Reason:        reason,
	})
}

func (d *Driver) emitNavigate(ctx context.Context, direction string, from, to int, label string) {
	if d.hooks.OnNavigate == nil {
		return
	}
	d.hooks.OnNavigate(ctx, &domain.NavigationEvent{
		HookEventBase: hookBase(domain.HookNavigate),
		Direction:     direction,
		FromIndex:     from,
		ToIndex:       to,
		Label:         label,
	})
}
