package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalsClone_Independence(t *testing.T) {
	original := Locals{
		"count": 1,
		"name":  "root",
		"nested": map[string]any{
			"inner": []any{1, 2, 3},
		},
		"tags": []string{"a", "b"},
	}

	clone := original.Clone()
	require.Equal(t, map[string]any(original), map[string]any(clone))

	// Mutate the clone at every depth.
	clone["count"] = 99
	clone["nested"].(map[string]any)["inner"].([]any)[0] = "mutated"
	clone["tags"].([]string)[0] = "z"

	assert.Equal(t, 1, original["count"])
	assert.Equal(t, 1, original["nested"].(map[string]any)["inner"].([]any)[0])
	assert.Equal(t, "a", original["tags"].([]string)[0])
}

func TestLocalsClone_ExternallyOwnedReferencesAreShared(t *testing.T) {
	type handle struct{ n int }
	h := &handle{n: 1}

	original := Locals{"handle": h}
	clone := original.Clone()

	// Pointers are outside the JSON shape and stay shared.
	clone["handle"].(*handle).n = 42
	assert.Equal(t, 42, original["handle"].(*handle).n)
}

func TestLocalsClone_Nil(t *testing.T) {
	var l Locals
	assert.Nil(t, l.Clone())
}

func TestFrameClone(t *testing.T) {
	f := NewFrame("entry")
	f.Locals["answer"] = 42
	f.Pending = PendingSignal{Kind: SignalThrow, Error: "boom"}

	c := f.Clone()
	require.Equal(t, f.Position, c.Position)
	require.Equal(t, f.Pending, c.Pending)

	c.Locals["answer"] = 7
	c.Position = "elsewhere"

	assert.Equal(t, 42, f.Locals["answer"])
	assert.Equal(t, Position("entry"), f.Position)
}

func TestFrameClone_Nil(t *testing.T) {
	var f *Frame
	assert.Nil(t, f.Clone())
}

func TestPendingSignalNone(t *testing.T) {
	assert.True(t, PendingSignal{}.None())
	assert.True(t, PendingSignal{Kind: SignalNone}.None())
	assert.False(t, PendingSignal{Kind: SignalThrow, Error: "x"}.None())
}
