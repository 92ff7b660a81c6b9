// Package branch implements the navigable branch history of a driver: fork
// nodes with admission counters and the undo/redo cursor over them.
package branch

import (
	"context"
	"sync"

	"github.com/aretw0/espalier/internal/runtime"
)

// Node is one addressable branch: it owns a suspended machine plus the
// bookkeeping for admission control and cursor-move callbacks. A node never
// mutates a sibling or ancestor node's machine; forking clones the owned
// machine and leaves the original untouched.
type Node struct {
	machine *runtime.Machine
	label   string
	limit   int
	undo    func(context.Context)
	redo    func(context.Context)

	mu     sync.Mutex
	active int
}

// NewNode wraps a suspended machine in a fresh node. The activity counter
// starts at zero regardless of what the parent node had in flight. A negative
// limit means unbounded admission.
func NewNode(machine *runtime.Machine, label string, limit int, undo, redo func(context.Context)) *Node {
	return &Node{
		machine: machine,
		label:   label,
		limit:   limit,
		undo:    undo,
		redo:    redo,
	}
}

// Label returns the identifier of the event that produced this node. The
// root node's label is empty.
func (n *Node) Label() string {
	return n.label
}

// Limit returns the admission bound for branches forked from this node.
func (n *Node) Limit() int {
	return n.limit
}

// Active returns the number of in-flight branches forked from this node.
func (n *Node) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Machine returns the owned machine. Callers must not resume it directly;
// branches run on forked clones.
func (n *Node) Machine() *runtime.Machine {
	return n.machine
}

// Admit reserves one in-flight branch slot. It returns true and increments
// the activity counter iff the counter is below the limit; a negative limit
// always admits.
func (n *Node) Admit() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.limit >= 0 && n.active >= n.limit {
		return false
	}
	n.active++
	return true
}

// Release returns one slot, floored at zero.
func (n *Node) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.active > 0 {
		n.active--
	}
}

// Fork clones the owned machine into an independent branch. The caller wraps
// the clone in a new node once it reaches its next receive point.
func (n *Node) Fork() (*runtime.Machine, error) {
	return n.machine.Clone()
}
