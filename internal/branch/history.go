package branch

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// History is the ordered record of branch-producing events with a movable
// cursor. Index 0 is the root (pre-first-event) node. Entries up to the
// cursor form the live path; entries beyond it are redo-able until a new
// push replaces that future.
type History struct {
	mu      sync.Mutex
	entries []*Node
	cursor  int
}

// NewHistory creates a history rooted at the given node.
func NewHistory(root *Node) *History {
	return &History{entries: []*Node{root}}
}

// Restore rebuilds a history from previously captured entries and cursor,
// typically when resuming a persisted timeline.
func Restore(entries []*Node, cursor int) (*History, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("history needs at least a root entry")
	}
	if cursor < 0 || cursor >= len(entries) {
		return nil, fmt.Errorf("cursor %d out of range [0, %d]", cursor, len(entries)-1)
	}
	owned := make([]*Node, len(entries))
	copy(owned, entries)
	return &History{entries: owned, cursor: cursor}, nil
}

// Push truncates everything after the cursor, appends the node, and moves
// the cursor onto it.
func (h *History) Push(n *Node) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.cursor+1], n)
	h.cursor = len(h.entries) - 1
}

// Undo steps the cursor back by one, invoking the departed entry's undo
// callback. It returns the entry that was undone. At the root it returns
// ErrAtStart and leaves the cursor unchanged.
func (h *History) Undo(ctx context.Context) (*Node, error) {
	h.mu.Lock()
	if h.cursor == 0 {
		h.mu.Unlock()
		return nil, domain.ErrAtStart
	}
	node := h.entries[h.cursor]
	h.cursor--
	h.mu.Unlock()

	if node.undo != nil {
		node.undo(ctx)
	}
	return node, nil
}

// Redo steps the cursor forward by one, invoking the entered entry's redo
// callback. It returns the entry that was redone. At the newest entry it
// returns ErrAtEnd and leaves the cursor unchanged.
func (h *History) Redo(ctx context.Context) (*Node, error) {
	h.mu.Lock()
	if h.cursor == len(h.entries)-1 {
		h.mu.Unlock()
		return nil, domain.ErrAtEnd
	}
	h.cursor++
	node := h.entries[h.cursor]
	h.mu.Unlock()

	if node.redo != nil {
		node.redo(ctx)
	}
	return node, nil
}

// Current returns the entry under the cursor.
func (h *History) Current() *Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.cursor]
}

// Cursor returns the current cursor index.
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Len returns the number of entries including the root.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Labels returns the display labels of all non-root entries in order.
func (h *History) Labels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	labels := make([]string, 0, len(h.entries)-1)
	for _, n := range h.entries[1:] {
		labels = append(labels, n.label)
	}
	return labels
}

// Entries returns a copy of the entry slice for snapshotting.
func (h *History) Entries() []*Node {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Node, len(h.entries))
	copy(out, h.entries)
	return out
}

// View returns the entries and cursor as observed under a single lock
// acquisition, so snapshots see a consistent pairing.
func (h *History) View() ([]*Node, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Node, len(h.entries))
	copy(out, h.entries)
	return out, h.cursor
}
