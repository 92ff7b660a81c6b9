package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Registry manages named programs. Programs are immutable once built, so a
// single registered instance is safely shared by every driver and clone.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]domain.Program
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[string]domain.Program),
	}
}

// Register adds a program under its own name. If a program with the same
// name exists, it is overwritten.
func (r *Registry) Register(program domain.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[program.Name()] = program
}

// Load looks up a program by name. It satisfies ports.ProgramLoader.
func (r *Registry) Load(ctx context.Context, name string) (domain.Program, error) {
	r.mu.RLock()
	program, ok := r.programs[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, name)
	}
	return program, nil
}

// List returns the registered program names in sorted order.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
