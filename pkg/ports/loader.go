package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// ProgramLoader defines how drivers retrieve executable programs.
// This allows the program source (scripts, Loam, registry) to be decoupled.
type ProgramLoader interface {
	// Load retrieves a program by name.
	// Returns domain.ErrProgramNotFound if no such program exists.
	Load(ctx context.Context, name string) (domain.Program, error)

	// List returns the names of all available programs.
	// This is used for introspection and tooling.
	List(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend
// changes. This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that emits the name of a program whose source
	// changed. The channel closes when the context is cancelled or the
	// underlying watcher shuts down.
	Watch(ctx context.Context) (<-chan string, error)
}
