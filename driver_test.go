package espalier_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/domain"
)

// sinkRecorder collects everything a driver sends, safely across branches.
type sinkRecorder struct {
	mu       sync.Mutex
	payloads []any
}

func (s *sinkRecorder) Sink() domain.Sink {
	return func(ctx context.Context, payload any) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.payloads = append(s.payloads, payload)
	}
}

func (s *sinkRecorder) All() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// explorerProgram echoes each event's payload and re-suspends with undo/redo
// hooks tagged by the event type. Hook invocations are appended to log.
func explorerProgram(mu *sync.Mutex, log *[]string) domain.Program {
	record := func(entry string) {
		mu.Lock()
		defer mu.Unlock()
		*log = append(*log, entry)
	}
	hooksFor := func(tag string) (domain.BranchHook, domain.BranchHook) {
		undo := func(ctx context.Context, sink domain.Sink) { record("undo:" + tag) }
		redo := func(ctx context.Context, sink domain.Sink) { record("redo:" + tag) }
		return undo, redo
	}

	return &script{
		name:  "explorer",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "wait"), nil
			},
			"wait": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				ev := in.Value.(domain.Event)
				locals["tag"] = ev.Type
				return domain.YieldOutcome(domain.Send(ev.Payload), "suspend"), nil
			},
			"suspend": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				undo, redo := hooksFor(locals["tag"].(string))
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{Undo: undo, Redo: redo}), "wait"), nil
			},
		},
	}
}

func TestDriver_ConcreteScenario(t *testing.T) {
	ctx := context.Background()

	var undoCalls, redoCalls int
	program := &script{
		name:  "scenario",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{Limit: domain.Limit(1)}), "wait"), nil
			},
			"wait": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Send("x"), "after"), nil
			},
			"after": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				params := domain.ReceiveParams{
					Limit: domain.Limit(1),
					Undo:  func(ctx context.Context, sink domain.Sink) { undoCalls++ },
					Redo:  func(ctx context.Context, sink domain.Sink) { redoCalls++ },
				}
				return domain.YieldOutcome(domain.Receive(params), "wait"), nil
			},
		},
	}

	rec := &sinkRecorder{}
	driver, err := espalier.NewDriver(program, rec.Sink())
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", nil)))

	assert.Equal(t, []any{"x"}, rec.All())
	assert.Equal(t, []string{"A"}, driver.Labels())
	assert.Equal(t, 1, driver.CurrentIndex())
	assert.Equal(t, "A", driver.Current())

	require.NoError(t, driver.Undo(ctx))
	assert.Equal(t, 1, undoCalls)
	assert.Equal(t, 0, redoCalls)
	assert.Equal(t, 0, driver.CurrentIndex())
	assert.Equal(t, "", driver.Current())
}

func TestDriver_NavigationBounds(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var log []string
	driver, err := espalier.NewDriver(explorerProgram(&mu, &log), nil)
	require.NoError(t, err)

	require.ErrorIs(t, driver.Undo(ctx), domain.ErrAtStart)
	require.ErrorIs(t, driver.Redo(ctx), domain.ErrAtEnd)
	assert.Equal(t, 0, driver.CurrentIndex())
	assert.Empty(t, log)
}

func TestDriver_DispatchAfterUndoTruncatesFuture(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var log []string
	driver, err := espalier.NewDriver(explorerProgram(&mu, &log), nil)
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", "a")))
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("B", "b")))
	require.Equal(t, []string{"A", "B"}, driver.Labels())

	require.NoError(t, driver.Undo(ctx))
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("C", "c")))

	assert.Equal(t, []string{"A", "C"}, driver.Labels())
	assert.Equal(t, 2, driver.CurrentIndex())
	require.ErrorIs(t, driver.Redo(ctx), domain.ErrAtEnd)
}

func TestDriver_CallbacksFireOncePerStep(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var log []string
	driver, err := espalier.NewDriver(explorerProgram(&mu, &log), nil)
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", "a")))
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("B", "b")))

	require.NoError(t, driver.Undo(ctx))
	require.NoError(t, driver.Undo(ctx))
	require.NoError(t, driver.Redo(ctx))
	require.NoError(t, driver.Redo(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"undo:B", "undo:A", "redo:A", "redo:B"}, log)
}

func TestDriver_DropWhenBudgetExhausted(t *testing.T) {
	ctx := context.Background()

	started := make(chan struct{})
	gate := make(chan struct{})

	program := &script{
		name:  "gated",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{Limit: domain.Limit(1)}), "work"), nil
			},
			"work": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				close(started)
				<-gate
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "work"), nil
			},
		},
	}

	rec := &sinkRecorder{}
	var dropped []string
	var dropMu sync.Mutex
	hooks := domain.LifecycleHooks{
		OnDrop: func(ctx context.Context, ev *domain.DispatchEvent) {
			dropMu.Lock()
			defer dropMu.Unlock()
			dropped = append(dropped, ev.Label)
		},
	}

	driver, err := espalier.NewDriver(program, rec.Sink(), espalier.WithLifecycleHooks(hooks))
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- driver.Dispatch(ctx, domain.NewEvent("A", nil))
	}()

	// Wait until A's branch is running inside the body, holding the only
	// admission slot of the root entry.
	<-started
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("B", nil)))

	assert.Empty(t, driver.Labels())
	assert.Empty(t, rec.All())
	dropMu.Lock()
	assert.Equal(t, []string{"B"}, dropped)
	dropMu.Unlock()

	close(gate)
	require.NoError(t, <-firstDone)
	assert.Equal(t, []string{"A"}, driver.Labels())
}

func TestDriver_ZeroLimitAdmitsNothing(t *testing.T) {
	ctx := context.Background()

	program := &script{
		name:  "sealed",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{Limit: domain.Limit(0)}), "wait"), nil
			},
			"wait": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.Outcome{}, fmt.Errorf("must never run")
			},
		},
	}

	rec := &sinkRecorder{}
	driver, err := espalier.NewDriver(program, rec.Sink())
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", nil)))
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("B", nil)))

	assert.Empty(t, driver.Labels())
	assert.Empty(t, rec.All())
	assert.Equal(t, 0, driver.CurrentIndex())
}

func TestDriver_BranchErrorSurfacesAndDriverSurvives(t *testing.T) {
	ctx := context.Background()

	program := &script{
		name:  "fragile",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "wait"), nil
			},
			"wait": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				ev := in.Value.(domain.Event)
				if ev.Type == "bad" {
					return domain.Outcome{}, fmt.Errorf("kaboom")
				}
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "wait"), nil
			},
		},
	}

	driver, err := espalier.NewDriver(program, nil)
	require.NoError(t, err)

	err = driver.Dispatch(ctx, domain.NewEvent("bad", nil))
	var branchErr *domain.BranchError
	require.ErrorAs(t, err, &branchErr)
	assert.Equal(t, "bad", branchErr.Label)
	assert.EqualError(t, branchErr.Err, "kaboom")

	// The failed branch leaves no trace and the driver keeps working.
	assert.Empty(t, driver.Labels())
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("good", nil)))
	assert.Equal(t, []string{"good"}, driver.Labels())
}

func TestDriver_CompletedBranchLeavesNoEntry(t *testing.T) {
	ctx := context.Background()

	program := &script{
		name:  "finisher",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "wait"), nil
			},
			"wait": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				ev := in.Value.(domain.Event)
				if ev.Type == "finish" {
					return domain.ReturnOutcome("done"), nil
				}
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "wait"), nil
			},
		},
	}

	driver, err := espalier.NewDriver(program, nil)
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("finish", nil)))
	assert.Empty(t, driver.Labels())
	assert.Equal(t, 0, driver.CurrentIndex())

	// The current entry's engine was only forked; it is still suspended
	// and accepts further events.
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("keep", nil)))
	assert.Equal(t, []string{"keep"}, driver.Labels())
}

func TestDriver_StartErrorIsPersistent(t *testing.T) {
	ctx := context.Background()

	program := &script{
		name:  "eager",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.ReturnOutcome("bye"), nil
			},
		},
	}

	driver, err := espalier.NewDriver(program, nil)
	require.NoError(t, err)

	first := driver.Dispatch(ctx, domain.NewEvent("A", nil))
	require.Error(t, first)
	assert.Contains(t, first.Error(), "before its first receive point")

	second := driver.Dispatch(ctx, domain.NewEvent("B", nil))
	require.Error(t, second)
	assert.Equal(t, first.Error(), second.Error())
}

func TestDriver_LimitInheritanceTakesMinimum(t *testing.T) {
	ctx := context.Background()

	// Each event's payload picks the limit requested by the next receive:
	// nil inherits, an int narrows or tries to widen.
	program := &script{
		name:  "budgeted",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "wait"), nil
			},
			"wait": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				ev := in.Value.(domain.Event)
				params := domain.ReceiveParams{}
				if n, ok := ev.Payload.(int); ok {
					params.Limit = domain.Limit(n)
				}
				return domain.YieldOutcome(domain.Receive(params), "wait"), nil
			},
		},
	}

	driver, err := espalier.NewDriver(program, nil)
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", 2)))   // narrow: unlimited -> 2
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("B", nil))) // inherit 2
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("C", 5)))   // min(2, 5) = 2

	snap, err := driver.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 4)

	assert.Equal(t, domain.Unlimited, snap.Entries[0].Limit)
	assert.Equal(t, 2, snap.Entries[1].Limit)
	assert.Equal(t, 2, snap.Entries[2].Limit)
	assert.Equal(t, 2, snap.Entries[3].Limit)
}

func TestDriver_SendsArriveInProgramOrder(t *testing.T) {
	ctx := context.Background()

	program := &script{
		name:  "chatty",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "one"), nil
			},
			"one": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Send("first"), "two"), nil
			},
			"two": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Send("second"), "three"), nil
			},
			"three": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Send("third"), "rest"), nil
			},
			"rest": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "one"), nil
			},
		},
	}

	rec := &sinkRecorder{}
	driver, err := espalier.NewDriver(program, rec.Sink())
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("go", nil)))
	assert.Equal(t, []any{"first", "second", "third"}, rec.All())
}

// tallyProgram counts accepted events and reports the tally on each branch.
func tallyProgram() domain.Program {
	return &script{
		name:  "tally",
		entry: "boot",
		steps: map[domain.Position]step{
			"boot": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				locals["n"] = 0
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "bump"), nil
			},
			"bump": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				locals["n"] = locals["n"].(int) + 1
				return domain.YieldOutcome(domain.Send(fmt.Sprintf("n=%d", locals["n"])), "rest"), nil
			},
			"rest": func(ctx context.Context, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "bump"), nil
			},
		},
	}
}

func TestDriver_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()

	rec := &sinkRecorder{}
	driver, err := espalier.NewDriver(tallyProgram(), rec.Sink())
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", nil)))
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("B", nil)))
	require.NoError(t, driver.Undo(ctx))

	snap, err := driver.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tally", snap.Program)
	assert.Equal(t, 1, snap.Cursor)
	require.Len(t, snap.Entries, 3)
	assert.False(t, snap.SavedAt.IsZero())

	rec2 := &sinkRecorder{}
	restored, err := espalier.RestoreDriver(tallyProgram(), snap, rec2.Sink())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, restored.Labels())
	assert.Equal(t, 1, restored.CurrentIndex())

	// Dispatching from the restored cursor forks entry A (tally 1), so the
	// new branch reports 2 and replaces B's future.
	require.NoError(t, restored.Dispatch(ctx, domain.NewEvent("C", nil)))
	assert.Equal(t, []any{"n=2"}, rec2.All())
	assert.Equal(t, []string{"A", "C"}, restored.Labels())
}

func TestRestoreDriver_RejectsForeignSnapshot(t *testing.T) {
	ctx := context.Background()

	driver, err := espalier.NewDriver(tallyProgram(), nil)
	require.NoError(t, err)
	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", nil)))

	snap, err := driver.Snapshot(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var log []string
	_, err = espalier.RestoreDriver(explorerProgram(&mu, &log), snap, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to program")

	snap.Cursor = 99
	_, err = espalier.RestoreDriver(tallyProgram(), snap, nil)
	require.Error(t, err)
}

func TestDriver_LifecycleHookSequence(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var seq []string
	note := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seq = append(seq, s)
	}
	hooks := domain.LifecycleHooks{
		OnDispatch: func(ctx context.Context, ev *domain.DispatchEvent) {
			note("dispatch:" + ev.Label)
		},
		OnSend: func(ctx context.Context, ev *domain.SendEvent) {
			note(fmt.Sprintf("send:%v", ev.Payload))
		},
		OnBranch: func(ctx context.Context, ev *domain.BranchEvent) {
			note(fmt.Sprintf("branch:%s@%d", ev.Label, ev.Index))
		},
		OnNavigate: func(ctx context.Context, ev *domain.NavigationEvent) {
			note(fmt.Sprintf("%s:%d->%d", ev.Direction, ev.FromIndex, ev.ToIndex))
		},
	}

	var hookMu sync.Mutex
	var log []string
	driver, err := espalier.NewDriver(explorerProgram(&hookMu, &log), nil, espalier.WithLifecycleHooks(hooks))
	require.NoError(t, err)

	require.NoError(t, driver.Dispatch(ctx, domain.NewEvent("A", "a")))
	require.NoError(t, driver.Undo(ctx))
	require.NoError(t, driver.Redo(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"dispatch:A",
		"send:a",
		"branch:A@1",
		"undo:1->0",
		"redo:0->1",
	}, seq)
}

func TestDriver_InstancesAreIndependent(t *testing.T) {
	ctx := context.Background()

	program := tallyProgram()

	recA := &sinkRecorder{}
	driverA, err := espalier.NewDriver(program, recA.Sink())
	require.NoError(t, err)
	recB := &sinkRecorder{}
	driverB, err := espalier.NewDriver(program, recB.Sink())
	require.NoError(t, err)

	require.NoError(t, driverA.Dispatch(ctx, domain.NewEvent("A1", nil)))
	require.NoError(t, driverA.Dispatch(ctx, domain.NewEvent("A2", nil)))
	require.NoError(t, driverB.Dispatch(ctx, domain.NewEvent("B1", nil)))

	assert.Equal(t, []string{"A1", "A2"}, driverA.Labels())
	assert.Equal(t, []string{"B1"}, driverB.Labels())
	assert.Equal(t, []any{"n=1", "n=2"}, recA.All())
	assert.Equal(t, []any{"n=1"}, recB.All())
}
