package observability

import (
	"context"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Journal keeps the most recent lifecycle events in a fixed-size ring, so
// tooling can show what a driver did lately without scraping metrics. Events
// are stored as the concrete domain event structs; each carries its own
// timestamp and type tag.
type Journal struct {
	mu     sync.Mutex
	events []any
	next   int
	filled bool
}

const defaultJournalSize = 128

// NewJournal creates a journal holding up to capacity events. Non-positive
// capacities fall back to a small default.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalSize
	}
	return &Journal{events: make([]any, capacity)}
}

// Hooks returns lifecycle hooks that record every event into the journal.
func (j *Journal) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDispatch:  func(ctx context.Context, e *domain.DispatchEvent) { j.record(e) },
		OnDrop:      func(ctx context.Context, e *domain.DispatchEvent) { j.record(e) },
		OnSend:      func(ctx context.Context, e *domain.SendEvent) { j.record(e) },
		OnBranch:    func(ctx context.Context, e *domain.BranchEvent) { j.record(e) },
		OnBranchEnd: func(ctx context.Context, e *domain.BranchEndEvent) { j.record(e) },
		OnNavigate:  func(ctx context.Context, e *domain.NavigationEvent) { j.record(e) },
	}
}

// Recent returns the recorded events, oldest first. The slice is a copy.
func (j *Journal) Recent() []any {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.filled {
		out := make([]any, j.next)
		copy(out, j.events[:j.next])
		return out
	}
	out := make([]any, 0, len(j.events))
	out = append(out, j.events[j.next:]...)
	out = append(out, j.events[:j.next]...)
	return out
}

func (j *Journal) record(event any) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events[j.next] = event
	j.next++
	if j.next == len(j.events) {
		j.next = 0
		j.filled = true
	}
}
