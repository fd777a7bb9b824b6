// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager.go - Core Backup Manager

The Manager is the engine: one explicit value owning the configuration store,
the artifact repository, the metadata store and the scheduler. Every operation
of the engine API is a method on it.

Manager Responsibilities:
  - Backup and restore orchestration
  - Metadata storage and retrieval
  - Scheduler lifecycle management
  - Cancellation of in-flight child processes

Thread Safety:
Orchestrators run on the caller's goroutine. In-flight runs register a cancel
function keyed by their id. The scheduler runs in its own goroutine and is
started and stopped through Start/Stop or run under a supervisor through
Serve.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/database"
	"github.com/tomtom215/talon/internal/logging"
)

// DatabaseInspector reads statistics from and provisions databases on the
// source server.
type DatabaseInspector interface {
	Stats(ctx context.Context) (*database.Stats, error)
	EnsureDatabase(ctx context.Context, name string) (bool, error)
}

// InspectorFactory builds an inspector for a configuration snapshot.
type InspectorFactory func(cfg *config.Config) DatabaseInspector

// DefaultInspectorFactory connects to the configured server with pgx.
func DefaultInspectorFactory(cfg *config.Config) DatabaseInspector {
	return database.NewInspector(database.ConnConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
	})
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for timestamps and classification.
// Durations always come from the monotonic clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLocation sets the location calendar rules are evaluated in. Default: time.Local
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.loc = loc }
}

// WithInspectorFactory replaces the source-database inspector.
func WithInspectorFactory(f InspectorFactory) Option {
	return func(m *Manager) { m.newInspector = f }
}

// Manager handles backup and restore operations
type Manager struct {
	cfg          *config.Store
	repo         *Repository
	store        *Store
	now          func() time.Time
	loc          *time.Location
	newInspector InspectorFactory

	// In-flight runs, keyed by backup or restore id
	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
	jobsActive map[string]bool
	runsWg     sync.WaitGroup

	// Scheduler
	schedulerStop chan struct{}
	schedulerWg   sync.WaitGroup
	running       bool
	closed        bool
	runningMu     sync.Mutex

	closeOnce sync.Once
}

// NewManager opens the engine over the configuration in cfg: it creates the
// repository layout and opens the metadata store under backup_root.
func NewManager(cfg *config.Store, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, newError(KindConfiguration, "create manager", errors.New("configuration store is required"))
	}

	m := &Manager{
		cfg:          cfg,
		now:          time.Now,
		loc:          time.Local,
		newInspector: DefaultInspectorFactory,
		inflight:     make(map[string]context.CancelFunc),
		jobsActive:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	snapshot := cfg.Get()
	repo, err := NewRepository(snapshot.BackupRoot)
	if err != nil {
		return nil, err
	}
	m.repo = repo

	store, err := OpenStore(filepath.Join(repo.Root(), MetadataFileName))
	if err != nil {
		return nil, err
	}
	m.store = store

	cfg.OnChange(m.onConfigChange)

	return m, nil
}

// onConfigChange follows configuration updates: the repository moves with
// backup_root (the metadata store stays where it was opened until restart),
// default job patterns follow the schedule anchors, and turning
// schedule.enabled back on reschedules jobs from now.
func (m *Manager) onConfigChange(old, updated config.Config) {
	if old.BackupRoot != updated.BackupRoot {
		if err := m.repo.SetRoot(updated.BackupRoot); err != nil {
			logging.Error().Err(err).Str("backup_root", updated.BackupRoot).Msg("Failed to move backup root")
		} else {
			logging.Info().
				Str("backup_root", m.repo.Root()).
				Str("metadata", m.store.Path()).
				Msg("Backup root changed; metadata store stays in place until restart")
		}
	}

	if old.Schedule == updated.Schedule {
		return
	}
	ctx := context.Background()
	if err := m.PrepareJobs(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to apply schedule change")
		return
	}
	if updated.Schedule.Enabled && !old.Schedule.Enabled {
		if err := m.rescheduleFromNow(ctx); err != nil {
			logging.Error().Err(err).Msg("Failed to reschedule jobs")
			return
		}
	}
	logging.Info().Bool("enabled", updated.Schedule.Enabled).Msg("Schedule settings applied")
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() config.Config {
	return m.cfg.Get()
}

// Repository returns the artifact repository.
func (m *Manager) Repository() *Repository {
	return m.repo
}

// Start begins the scheduler. Callers run Reconcile first.
func (m *Manager) Start(ctx context.Context) error {
	stop, err := m.beginScheduler()
	if err != nil {
		return err
	}
	go func() {
		defer m.endScheduler()
		m.runScheduler(ctx, stop)
	}()
	return nil
}

// Stop stops the scheduler, whether Start or RunScheduler owns the loop, and
// waits for it to exit. Scheduled runs already started keep going; Close
// cancels them.
func (m *Manager) Stop() error {
	m.runningMu.Lock()
	stop := m.schedulerStop
	m.schedulerStop = nil
	m.runningMu.Unlock()

	if stop != nil {
		close(stop)
	}
	m.schedulerWg.Wait()
	return nil
}

// beginScheduler claims the single scheduler slot.
func (m *Manager) beginScheduler() (<-chan struct{}, error) {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	if m.closed {
		return nil, ErrSchedulerStopped
	}
	if m.running {
		return nil, errors.New("scheduler is already running")
	}
	stop := make(chan struct{})
	m.running = true
	m.schedulerStop = stop
	m.schedulerWg.Add(1)
	return stop, nil
}

func (m *Manager) endScheduler() {
	m.runningMu.Lock()
	m.running = false
	m.schedulerStop = nil
	m.runningMu.Unlock()
	m.schedulerWg.Done()
}

// IsSchedulerRunning reports whether the scheduler loop is active.
func (m *Manager) IsSchedulerRunning() bool {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	return m.running
}

// Close stops the scheduler and waits for it, including a loop run by
// RunScheduler under a supervisor, then cancels in-flight children, waits
// for their runs to finish and closes the metadata store. The scheduler
// cannot be started again afterwards.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.runningMu.Lock()
		m.closed = true
		m.runningMu.Unlock()
		m.Stop() //nolint:errcheck,gosec // Stop never fails

		m.inflightMu.Lock()
		for _, cancel := range m.inflight {
			cancel()
		}
		m.inflightMu.Unlock()

		m.runsWg.Wait()
		err = m.store.Close()
	})
	return err
}

// track registers an in-flight run and returns its context. release must be
// called when the run finishes.
func (m *Manager) track(ctx context.Context, id string) (runCtx context.Context, release func()) {
	runCtx, cancel := context.WithCancel(logging.ContextWithRunID(ctx, id))

	m.inflightMu.Lock()
	m.inflight[id] = cancel
	m.inflightMu.Unlock()

	return runCtx, func() {
		m.inflightMu.Lock()
		delete(m.inflight, id)
		m.inflightMu.Unlock()
		cancel()
	}
}

func (m *Manager) cancelRun(id string) bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()

	cancel, ok := m.inflight[id]
	if ok {
		cancel()
	}
	return ok
}

// CancelBackup terminates the dump of a running backup. The run then takes
// the failure path. Returns false if id is not in flight.
func (m *Manager) CancelBackup(id string) bool {
	return m.cancelRun(id)
}

// CancelRestore terminates the load of a running restore.
func (m *Manager) CancelRestore(id string) bool {
	return m.cancelRun(id)
}

// clock returns the current time in the engine's location.
func (m *Manager) clock() time.Time {
	return m.now().In(m.loc)
}
