package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type segment func(locals domain.Locals, in domain.Input) (domain.Outcome, error)

// stubProgram is a hand-rolled body for machine tests: a table of segments
// keyed by position.
type stubProgram struct {
	name  string
	entry domain.Position
	steps map[domain.Position]segment
}

func (p *stubProgram) Name() string           { return p.name }
func (p *stubProgram) Entry() domain.Position { return p.entry }

func (p *stubProgram) Step(_ context.Context, pos domain.Position, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
	fn, ok := p.steps[pos]
	if !ok {
		return domain.Outcome{}, fmt.Errorf("no segment at %q", pos)
	}
	return fn(locals, in)
}

func TestMachine_StartsSuspendedAtEntry(t *testing.T) {
	m := New(&stubProgram{name: "p", entry: "start"})
	assert.Equal(t, domain.StateSuspended, m.State())

	frame, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, domain.Position("start"), frame.Position)
}

func TestMachine_ResumeThroughYields(t *testing.T) {
	prog := &stubProgram{
		name:  "greeter",
		entry: "start",
		steps: map[domain.Position]segment{
			"start": func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				locals["greeting"] = fmt.Sprintf("hello %v", in.Value)
				return domain.YieldOutcome(domain.Send(locals["greeting"]), "after-send"), nil
			},
			"after-send": func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				return domain.ReturnOutcome(locals["greeting"]), nil
			},
		},
	}

	m := New(prog)

	res, err := m.Resume(context.Background(), "world")
	require.NoError(t, err)
	require.Equal(t, domain.StepYielded, res.Kind)
	assert.Equal(t, domain.YieldSend, res.Yield.Kind)
	assert.Equal(t, "hello world", res.Yield.Payload)
	assert.Equal(t, domain.StateSuspended, m.State())

	res, err = m.Resume(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, domain.StepDone, res.Kind)
	assert.Equal(t, "hello world", res.Value)
	assert.Equal(t, domain.StateCompleted, m.State())

	value, terminalErr := m.Result()
	assert.Equal(t, "hello world", value)
	assert.NoError(t, terminalErr)
}

func TestMachine_JumpsRunWithinOneResumption(t *testing.T) {
	var visited []string
	record := func(name string, next domain.Position) segment {
		return func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
			visited = append(visited, name)
			if next == "" {
				return domain.ReturnOutcome(len(visited)), nil
			}
			return domain.JumpOutcome(next), nil
		}
	}

	prog := &stubProgram{
		name:  "chain",
		entry: "a",
		steps: map[domain.Position]segment{
			"a": record("a", "b"),
			"b": record("b", "c"),
			"c": record("c", ""),
		},
	}

	res, err := New(prog).Resume(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, domain.StepDone, res.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, visited)
	assert.Equal(t, 3, res.Value)
}

func TestMachine_ResumeOnTerminalFails(t *testing.T) {
	prog := &stubProgram{
		name:  "once",
		entry: "start",
		steps: map[domain.Position]segment{
			"start": func(domain.Locals, domain.Input) (domain.Outcome, error) {
				return domain.ReturnOutcome(nil), nil
			},
		},
	}

	m := New(prog)
	_, err := m.Resume(context.Background(), nil)
	require.NoError(t, err)

	_, err = m.Resume(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = m.ThrowInto(context.Background(), errors.New("late"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestMachine_ThrowIntoDelivered(t *testing.T) {
	prog := &stubProgram{
		name:  "catcher",
		entry: "start",
		steps: map[domain.Position]segment{
			"start": func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				if in.Err != nil {
					locals["recovered"] = in.Err.Error()
					return domain.ReturnOutcome("recovered"), nil
				}
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "start"), nil
			},
		},
	}

	m := New(prog)
	_, err := m.Resume(context.Background(), nil)
	require.NoError(t, err)

	res, err := m.ThrowInto(context.Background(), errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, domain.StepDone, res.Kind)
	assert.Equal(t, "recovered", res.Value)
}

func TestMachine_BodyErrorFailsMachine(t *testing.T) {
	bodyErr := errors.New("exploded")
	prog := &stubProgram{
		name:  "bomb",
		entry: "start",
		steps: map[domain.Position]segment{
			"start": func(domain.Locals, domain.Input) (domain.Outcome, error) {
				return domain.Outcome{}, bodyErr
			},
		},
	}

	m := New(prog)
	res, err := m.Resume(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, domain.StepErrored, res.Kind)
	assert.ErrorIs(t, res.Err, bodyErr)
	assert.Equal(t, domain.StateFailed, m.State())

	_, cloneErr := m.Clone()
	assert.ErrorIs(t, cloneErr, domain.ErrCloneWhileRunning)
}

func TestMachine_ProtocolViolations(t *testing.T) {
	cases := []struct {
		name    string
		outcome domain.Outcome
	}{
		{"unknown outcome kind", domain.Outcome{Kind: "telepathy"}},
		{"jump without target", domain.Outcome{Kind: domain.OutcomeJump}},
		{"yield without resume position", domain.Outcome{Kind: domain.OutcomeYield, Yield: domain.Send("x")}},
		{"unknown yield kind", domain.YieldOutcome(domain.Yield{Kind: "broadcast"}, "next")},
		{"negative receive limit", domain.YieldOutcome(domain.Receive(domain.ReceiveParams{Limit: domain.Limit(-2)}), "next")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog := &stubProgram{
				name:  "rogue",
				entry: "start",
				steps: map[domain.Position]segment{
					"start": func(domain.Locals, domain.Input) (domain.Outcome, error) {
						return tc.outcome, nil
					},
				},
			}

			m := New(prog)
			res, err := m.Resume(context.Background(), nil)
			require.NoError(t, err)
			require.Equal(t, domain.StepErrored, res.Kind)
			assert.ErrorIs(t, res.Err, domain.ErrProtocolViolation)
			assert.Equal(t, domain.StateFailed, m.State())
		})
	}
}

func TestMachine_CloneIsIndependent(t *testing.T) {
	prog := &stubProgram{
		name:  "counter",
		entry: "loop",
		steps: map[domain.Position]segment{
			"loop": func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				n, _ := locals["n"].(int)
				if in.Value != nil {
					n += in.Value.(int)
				}
				locals["n"] = n
				return domain.YieldOutcome(domain.Send(n), "loop"), nil
			},
		},
	}

	m := New(prog)
	_, err := m.Resume(context.Background(), 10)
	require.NoError(t, err)

	c, err := m.Clone()
	require.NoError(t, err)

	resOrig, err := m.Resume(context.Background(), 1)
	require.NoError(t, err)
	resClone, err := c.Resume(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 11, resOrig.Yield.Payload)
	assert.Equal(t, 110, resClone.Yield.Payload)
}

func TestMachine_RestoreHonorsPendingSignals(t *testing.T) {
	prog := &stubProgram{
		name:  "restored",
		entry: "start",
		steps: map[domain.Position]segment{
			"wait": func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				if in.Err != nil {
					return domain.Outcome{}, fmt.Errorf("delivered: %w", in.Err)
				}
				return domain.ReturnOutcome(in.Value), nil
			},
		},
	}

	t.Run("pending throw", func(t *testing.T) {
		frame := domain.NewFrame("wait")
		frame.Pending = domain.PendingSignal{Kind: domain.SignalThrow, Error: "stored failure"}

		m := Restore(prog, frame)
		res, err := m.Resume(context.Background(), "ignored")
		require.NoError(t, err)
		require.Equal(t, domain.StepErrored, res.Kind)
		assert.Contains(t, res.Err.Error(), "stored failure")
	})

	t.Run("pending return", func(t *testing.T) {
		frame := domain.NewFrame("wait")
		frame.Pending = domain.PendingSignal{Kind: domain.SignalReturn, Value: "early"}

		m := Restore(prog, frame)
		res, err := m.Resume(context.Background(), "ignored")
		require.NoError(t, err)
		require.Equal(t, domain.StepDone, res.Kind)
		assert.Equal(t, "early", res.Value)
		assert.Equal(t, domain.StateCompleted, m.State())
	})
}

func TestMachine_SnapshotIsolation(t *testing.T) {
	prog := &stubProgram{
		name:  "snap",
		entry: "loop",
		steps: map[domain.Position]segment{
			"loop": func(locals domain.Locals, in domain.Input) (domain.Outcome, error) {
				locals["seen"] = in.Value
				return domain.YieldOutcome(domain.Receive(domain.ReceiveParams{}), "loop"), nil
			},
		},
	}

	m := New(prog)
	_, err := m.Resume(context.Background(), "first")
	require.NoError(t, err)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	snap.Locals["seen"] = "tampered"

	again, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "first", again.Locals["seen"])
}
