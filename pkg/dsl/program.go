package dsl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
)

type stepKind string

const (
	stepReceive stepKind = "receive"
	stepSend    stepKind = "send"
	stepSet     stepKind = "set"
	stepLabel   stepKind = "label"
	stepGoto    stepKind = "goto"
	stepWhen    stepKind = "when"
	stepReturn  stepKind = "return"
	stepFail    stepKind = "fail"
)

// instruction is one step of a scripted program.
type instruction struct {
	kind  stepKind
	label string

	// receive
	limit      *int
	expects    schema.Schema
	expectsRaw map[string]string
	saveTo     string
	undoNote   string
	redoNote   string

	// send / set / return / fail / when
	key   string
	value any

	// goto / when
	target string
}

// Program is an executable step table. Positions are instruction indices
// rendered as strings, so captured frames stay plain data.
type Program struct {
	name    string
	instrs  []instruction
	labels  map[string]int
	onError int
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Entry returns the position of the first instruction.
func (p *Program) Entry() domain.Position { return "0" }

// Labels returns the jump targets the program defines, by instruction index.
func (p *Program) Labels() map[string]int {
	out := make(map[string]int, len(p.labels))
	for k, v := range p.labels {
		out[k] = v
	}
	return out
}

// Step executes the instruction at pos. Internal steps chain via jump
// outcomes, so one resumption runs until the next suspension point,
// completion or failure.
func (p *Program) Step(ctx context.Context, pos domain.Position, locals domain.Locals, in domain.Input) (domain.Outcome, error) {
	pc, err := strconv.Atoi(string(pos))
	if err != nil || pc < 0 || pc > len(p.instrs) {
		return domain.Outcome{}, fmt.Errorf("position %q is outside program %q", pos, p.name)
	}

	if in.Err != nil {
		if p.onError < 0 {
			return domain.Outcome{}, in.Err
		}
		locals["error"] = in.Err.Error()
		return domain.JumpOutcome(p.position(p.onError)), nil
	}

	if in.Value != nil {
		if err := p.deliver(pc, locals, in.Value); err != nil {
			return domain.Outcome{}, err
		}
	}

	if pc == len(p.instrs) {
		// Fell off the end of the script.
		return domain.ReturnOutcome(nil), nil
	}

	instr := p.instrs[pc]
	switch instr.kind {
	case stepReceive:
		params := domain.ReceiveParams{Limit: instr.limit}
		if instr.undoNote != "" {
			note := Render(instr.undoNote, locals)
			params.Undo = func(ctx context.Context, sink domain.Sink) {
				if sink != nil {
					sink(ctx, note)
				}
			}
		}
		if instr.redoNote != "" {
			note := Render(instr.redoNote, locals)
			params.Redo = func(ctx context.Context, sink domain.Sink) {
				if sink != nil {
					sink(ctx, note)
				}
			}
		}
		return domain.YieldOutcome(domain.Receive(params), p.position(pc+1)), nil

	case stepSend:
		return domain.YieldOutcome(domain.Send(RenderValue(instr.value, locals)), p.position(pc+1)), nil

	case stepSet:
		locals[instr.key] = RenderValue(instr.value, locals)
		return domain.JumpOutcome(p.position(pc + 1)), nil

	case stepLabel:
		return domain.JumpOutcome(p.position(pc + 1)), nil

	case stepGoto:
		return domain.JumpOutcome(p.position(p.labels[instr.target])), nil

	case stepWhen:
		if truthy(locals[instr.key]) {
			return domain.JumpOutcome(p.position(p.labels[instr.target])), nil
		}
		return domain.JumpOutcome(p.position(pc + 1)), nil

	case stepReturn:
		return domain.ReturnOutcome(RenderValue(instr.value, locals)), nil

	case stepFail:
		msg, _ := RenderValue(instr.value, locals).(string)
		if msg == "" {
			msg = "script failed"
		}
		return domain.Outcome{}, fmt.Errorf("%s", msg)

	default:
		return domain.Outcome{}, fmt.Errorf("program %q: unknown instruction kind %q at %d", p.name, instr.kind, pc)
	}
}

// deliver stores an incoming value into the locals and, when it arrived
// through a scripted receive, validates it against that receive's schema.
func (p *Program) deliver(pc int, locals domain.Locals, value any) error {
	ev, isEvent := value.(domain.Event)
	if !isEvent {
		locals["event"] = map[string]any{"type": "", "payload": value}
		return nil
	}

	locals["event"] = map[string]any{"type": ev.Type, "payload": ev.Payload}

	if pc == 0 || pc > len(p.instrs) {
		return nil
	}
	owner := p.instrs[pc-1]
	if owner.kind != stepReceive {
		return nil
	}
	if err := schema.ValidatePayload(owner.expects, ev.Payload); err != nil {
		return fmt.Errorf("event %q rejected: %w", ev.Type, err)
	}
	if owner.saveTo != "" {
		locals[owner.saveTo] = ev.Payload
	}
	return nil
}

func (p *Program) position(pc int) domain.Position {
	return domain.Position(strconv.Itoa(pc))
}

// truthy reports whether a local should satisfy a When jump.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
