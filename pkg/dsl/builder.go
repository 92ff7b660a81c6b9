package dsl

import (
	"fmt"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
)

// Builder accumulates instructions for a program. Methods append in order;
// construction errors are deferred and reported by Build.
type Builder struct {
	name    string
	instrs  []instruction
	errs    []error
	onError string
}

// NewProgram creates a builder for a program with the given name.
func NewProgram(name string) *Builder {
	return &Builder{name: name}
}

// ReceiveOption configures a single suspension point.
type ReceiveOption func(*instruction)

// WithLimit caps how many branches may fork from this suspension point.
// Negative means unlimited; omitting the option inherits the branch point's
// current budget.
func WithLimit(n int) ReceiveOption {
	return func(in *instruction) {
		limit := n
		in.limit = &limit
	}
}

// WithExpects declares the payload schema of events accepted here, as field
// name to type string (see schema.ParseType). Non-conforming events fail
// the branch.
func WithExpects(typeMap map[string]string) ReceiveOption {
	return func(in *instruction) {
		in.expectsRaw = typeMap
	}
}

// WithExpectsSchema declares the payload schema directly.
func WithExpectsSchema(s schema.Schema) ReceiveOption {
	return func(in *instruction) {
		in.expects = s
	}
}

// WithSaveTo stores the accepted event's payload under the given local.
func WithSaveTo(key string) ReceiveOption {
	return func(in *instruction) {
		in.saveTo = key
	}
}

// WithUndoNote emits the rendered template through the sink whenever this
// entry is undone. The template is rendered against the locals as they were
// at suspension time.
func WithUndoNote(template string) ReceiveOption {
	return func(in *instruction) {
		in.undoNote = template
	}
}

// WithRedoNote emits the rendered template through the sink whenever this
// entry is redone.
func WithRedoNote(template string) ReceiveOption {
	return func(in *instruction) {
		in.redoNote = template
	}
}

// Receive appends a suspension point. The label names it as a Goto target;
// it may be empty for anonymous receives.
func (b *Builder) Receive(label string, opts ...ReceiveOption) *Builder {
	in := instruction{kind: stepReceive, label: label}
	for _, opt := range opts {
		opt(&in)
	}
	if in.expectsRaw != nil {
		parsed, err := schema.ParseTypeMap(in.expectsRaw)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("receive %q: %w", label, err))
		}
		in.expects = parsed
	}
	if in.limit != nil && *in.limit < domain.Unlimited {
		b.errs = append(b.errs, fmt.Errorf("receive %q: limit %d is invalid", label, *in.limit))
	}
	b.instrs = append(b.instrs, in)
	return b
}

// Send appends an output step. String payloads are interpolated against the
// locals at run time; other values pass through untouched.
func (b *Builder) Send(payload any) *Builder {
	b.instrs = append(b.instrs, instruction{kind: stepSend, value: payload})
	return b
}

// Set appends an assignment to a local. String values are interpolated; a
// value that is exactly one "{{path}}" copies the referenced value without
// stringifying it.
func (b *Builder) Set(key string, value any) *Builder {
	if key == "" {
		b.errs = append(b.errs, fmt.Errorf("set: key must not be empty"))
	}
	b.instrs = append(b.instrs, instruction{kind: stepSet, key: key, value: value})
	return b
}

// Label appends a named no-op, usable as a Goto or OnError target.
func (b *Builder) Label(name string) *Builder {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("label: name must not be empty"))
	}
	b.instrs = append(b.instrs, instruction{kind: stepLabel, label: name})
	return b
}

// Goto appends an unconditional jump to a labeled instruction.
func (b *Builder) Goto(label string) *Builder {
	b.instrs = append(b.instrs, instruction{kind: stepGoto, target: label})
	return b
}

// When appends a conditional jump: if the local under key is truthy (neither
// absent, nil, false, zero nor empty), execution continues at the label.
func (b *Builder) When(key, label string) *Builder {
	b.instrs = append(b.instrs, instruction{kind: stepWhen, key: key, target: label})
	return b
}

// Return appends a completion step. The branch terminates with the rendered
// value and contributes no further history entries.
func (b *Builder) Return(value any) *Builder {
	b.instrs = append(b.instrs, instruction{kind: stepReturn, value: value})
	return b
}

// Fail appends a failing step. The branch terminates with an error carrying
// the rendered message.
func (b *Builder) Fail(message string) *Builder {
	b.instrs = append(b.instrs, instruction{kind: stepFail, value: message})
	return b
}

// OnError routes injected errors to the labeled instruction instead of
// failing the branch. The error message becomes the "error" local.
func (b *Builder) OnError(label string) *Builder {
	b.onError = label
	return b
}

// Build resolves labels and returns the executable program.
func (b *Builder) Build() (*Program, error) {
	if b.name == "" {
		return nil, fmt.Errorf("program name must not be empty")
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("program %q: %w", b.name, b.errs[0])
	}

	labels := make(map[string]int)
	for pc, in := range b.instrs {
		if in.label == "" {
			continue
		}
		if _, dup := labels[in.label]; dup {
			return nil, fmt.Errorf("program %q: duplicate label %q", b.name, in.label)
		}
		labels[in.label] = pc
	}

	for pc, in := range b.instrs {
		if in.kind != stepGoto && in.kind != stepWhen {
			continue
		}
		if _, ok := labels[in.target]; !ok {
			return nil, fmt.Errorf("program %q: instruction %d jumps to unknown label %q", b.name, pc, in.target)
		}
	}

	onError := -1
	if b.onError != "" {
		pc, ok := labels[b.onError]
		if !ok {
			return nil, fmt.Errorf("program %q: error handler label %q not found", b.name, b.onError)
		}
		onError = pc
	}

	instrs := make([]instruction, len(b.instrs))
	copy(instrs, b.instrs)

	return &Program{
		name:    b.name,
		instrs:  instrs,
		labels:  labels,
		onError: onError,
	}, nil
}
