package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// TimelineStore defines the interface for persisting timeline snapshots.
// This allows for durable exploration, enabling "Stop & Resume" sessions
// whose whole undo history survives a restart.
type TimelineStore interface {
	// Save persists the snapshot for a given timeline ID.
	Save(ctx context.Context, id string, snap *domain.TimelineSnapshot) error

	// Load retrieves the snapshot for a given timeline ID.
	// Returns domain.ErrTimelineNotFound if the timeline does not exist.
	Load(ctx context.Context, id string) (*domain.TimelineSnapshot, error)

	// Delete removes the snapshot for a given timeline ID.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored timelines.
	List(ctx context.Context) ([]string, error)
}
