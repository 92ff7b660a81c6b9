package domain

import "reflect"

// LocalsDiff represents the changes between two frames' locals. It is
// designed to be serialized to JSON for branch-comparison views.
type LocalsDiff struct {
	// Delta contains changed or added keys with their new values. Deleted
	// keys are present with a nil value; clients merge the delta into their
	// copy of the locals.
	Delta map[string]any `json:"delta,omitempty"`

	// Position is set when the two frames are paused at different positions.
	Position *Position `json:"position,omitempty"`
}

// DiffFrames calculates the difference between two suspended frames. If
// before is nil the diff represents the entire after frame (initial load).
// Returns nil when nothing differs.
func DiffFrames(before, after *Frame) *LocalsDiff {
	if after == nil {
		return nil
	}

	diff := &LocalsDiff{}

	if before == nil || before.Position != after.Position {
		pos := after.Position
		diff.Position = &pos
	}

	diff.Delta = diffLocals(before, after)

	if diff.Position == nil && len(diff.Delta) == 0 {
		return nil
	}
	return diff
}

func diffLocals(before, after *Frame) map[string]any {
	delta := make(map[string]any)

	if before == nil {
		for k, v := range after.Locals {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	for k, newVal := range after.Locals {
		oldVal, exists := before.Locals[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range before.Locals {
		if _, exists := after.Locals[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty reports whether the diff contains any actionable changes.
func (d *LocalsDiff) IsEmpty() bool {
	return d == nil || (d.Position == nil && len(d.Delta) == 0)
}
