package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/tracing"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// lockEntry holds the per-timeline mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates concurrent access to named timelines. Every operation
// rehydrates a driver from the stored snapshot, applies the change, and
// persists the result under a per-timeline lock, so overlapping requests for
// the same session cannot lose updates. Lock entries are reference counted
// and garbage collected once idle.
//
// Because drivers are rebuilt from snapshots, programmatic branch callbacks
// (undo/redo hooks registered in code) do not fire across Manager calls;
// hold a live Driver directly when those matter.
type Manager struct {
	store  ports.TimelineStore
	loader ports.ProgramLoader

	mu    sync.Mutex // guards locks
	locks map[string]*lockEntry

	locker      ports.DistributedLocker // optional, for multi-replica deployments
	lockTTL     time.Duration
	logger      *slog.Logger
	driverHooks func(program string) domain.LifecycleHooks
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking on top of the in-process locks.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock may be held before it expires
// on its own. It bounds the damage of a replica dying mid-operation.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for internal events such as deferred
// unlock failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDriverHooks installs a factory whose lifecycle hooks attach to every
// driver the manager builds, keyed by the session's program name. Metrics
// collectors plug in here (observability.Metrics.Hooks fits the signature).
// Hooks passed per call override the factory's.
func WithDriverHooks(factory func(program string) domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.driverHooks = factory
	}
}

// NewManager creates a session manager over the given store and program
// source.
func NewManager(store ports.TimelineStore, loader ports.ProgramLoader, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		loader:  loader,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu and call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry once nobody
// holds or waits on it.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session. When a
// distributed locker is configured it is taken after the local lock, so only
// one goroutine per replica ever polls for it.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Load retrieves the persisted snapshot of a session.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.TimelineSnapshot, error) {
	var snap *domain.TimelineSnapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// LoadOrStart returns a live driver for the session. A missing session is
// started from the named program and persisted immediately to reserve the
// ID; an existing one ignores programName and resumes from its snapshot.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID, programName string, sink domain.Sink, opts ...espalier.Option) (*espalier.Driver, error) {
	var driver *espalier.Driver
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		driver, err = m.loadOrStart(ctx, sessionID, programName, sink, opts)
		return err
	})
	return driver, err
}

// Save persists the driver's current timeline under the session ID.
func (m *Manager) Save(ctx context.Context, sessionID string, driver *espalier.Driver) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.persist(ctx, sessionID, driver)
	})
}

// Dispatch routes one event into the session and persists the outcome,
// starting the session first if needed. Load, dispatch and save happen under
// a single lock so concurrent requests are serialized rather than lost.
//
// A rejected event (admission failure, program error) leaves the stored
// timeline untouched. The driver is returned alongside the error whenever it
// could be built, so callers can still inspect the timeline.
func (m *Manager) Dispatch(ctx context.Context, sessionID, programName string, event domain.Event, sink domain.Sink, opts ...espalier.Option) (*espalier.Driver, error) {
	ctx, span := tracing.StartSpan(ctx, "session.dispatch", "")
	defer span.End()
	span.WithAttributes(map[string]string{"session.id": sessionID, "event.type": event.Type})

	var driver *espalier.Driver
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		driver, err = m.loadOrStart(ctx, sessionID, programName, sink, opts)
		if err != nil {
			return err
		}
		if err := driver.Dispatch(ctx, event); err != nil {
			return err
		}
		return m.persist(ctx, sessionID, driver)
	})
	span.SetStatus(err)
	return driver, err
}

// Undo moves the session's cursor one entry back and persists the new
// position. The session must already exist.
func (m *Manager) Undo(ctx context.Context, sessionID string, sink domain.Sink, opts ...espalier.Option) (*espalier.Driver, error) {
	return m.move(ctx, "session.undo", sessionID, sink, opts, func(ctx context.Context, d *espalier.Driver) error {
		return d.Undo(ctx)
	})
}

// Redo moves the session's cursor one entry forward and persists the new
// position. The session must already exist.
func (m *Manager) Redo(ctx context.Context, sessionID string, sink domain.Sink, opts ...espalier.Option) (*espalier.Driver, error) {
	return m.move(ctx, "session.redo", sessionID, sink, opts, func(ctx context.Context, d *espalier.Driver) error {
		return d.Redo(ctx)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying timeline store.
func (m *Manager) Store() ports.TimelineStore {
	return m.store
}

// Loader returns the program source the manager resolves names against.
func (m *Manager) Loader() ports.ProgramLoader {
	return m.loader
}

// loadOrStart restores the session or starts a fresh one. Caller must hold
// the session lock.
func (m *Manager) loadOrStart(ctx context.Context, sessionID, programName string, sink domain.Sink, opts []espalier.Option) (*espalier.Driver, error) {
	driver, err := m.restore(ctx, sessionID, sink, opts)
	if err == nil {
		return driver, nil
	}
	if !errors.Is(err, domain.ErrTimelineNotFound) {
		return nil, err
	}

	if programName == "" {
		return nil, fmt.Errorf("session %q has no timeline and no program was named to start one: %w", sessionID, domain.ErrTimelineNotFound)
	}
	program, err := m.loader.Load(ctx, programName)
	if err != nil {
		return nil, err
	}
	driver, err = espalier.NewDriver(program, sink, m.driverOpts(programName, opts)...)
	if err != nil {
		return nil, err
	}

	// Persist immediately to reserve the ID. Snapshotting also forces the
	// root computation to run, so a program that fails before its first
	// receive surfaces here instead of on a later request.
	if err := m.persist(ctx, sessionID, driver); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	return driver, nil
}

// restore rebuilds a live driver from the stored snapshot. Caller must hold
// the session lock.
func (m *Manager) restore(ctx context.Context, sessionID string, sink domain.Sink, opts []espalier.Option) (*espalier.Driver, error) {
	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	program, err := m.loader.Load(ctx, snap.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve program %q for session %s: %w", snap.Program, sessionID, err)
	}
	return espalier.RestoreDriver(program, snap, sink, m.driverOpts(snap.Program, opts)...)
}

// driverOpts prepends the manager-level hooks so per-call options keep the
// last word.
func (m *Manager) driverOpts(program string, opts []espalier.Option) []espalier.Option {
	if m.driverHooks == nil {
		return opts
	}
	merged := make([]espalier.Option, 0, len(opts)+1)
	merged = append(merged, espalier.WithLifecycleHooks(m.driverHooks(program)))
	return append(merged, opts...)
}

func (m *Manager) persist(ctx context.Context, sessionID string, driver *espalier.Driver) error {
	snap, err := driver.Snapshot(ctx)
	if err != nil {
		return err
	}
	return m.store.Save(ctx, sessionID, snap)
}

func (m *Manager) move(ctx context.Context, op, sessionID string, sink domain.Sink, opts []espalier.Option, step func(context.Context, *espalier.Driver) error) (*espalier.Driver, error) {
	ctx, span := tracing.StartSpan(ctx, op, "")
	defer span.End()
	span.WithAttributes(map[string]string{"session.id": sessionID})

	var driver *espalier.Driver
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		driver, err = m.restore(ctx, sessionID, sink, opts)
		if err != nil {
			return err
		}
		if err := step(ctx, driver); err != nil {
			return err
		}
		return m.persist(ctx, sessionID, driver)
	})
	span.SetStatus(err)
	return driver, err
}
