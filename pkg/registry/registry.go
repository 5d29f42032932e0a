// Package registry owns the set of active watchers: creation, lifecycle,
// bookkeeping, and status reporting. It is the only component allowed to
// mutate that set.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/filesentry/filesentry/pkg/filter"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/types"
	"github.com/filesentry/filesentry/pkg/watcher"
)

// EventSink receives change and status events emitted by the registry and
// its engines. Implemented by the broadcaster.
type EventSink interface {
	PublishChange(ev types.ChangeEvent)
	PublishStatus(ev types.StatusEvent)
}

// ErrorNotifier is told when a watcher enters the error state. Optional.
type ErrorNotifier interface {
	NotifyWatcherError(id string, err error)
}

// Options configures registry behavior
type Options struct {
	// MaxWatchers bounds the number of concurrently registered watchers.
	// Zero or negative means unlimited.
	MaxWatchers int

	// DefaultExclusions are appended to every watcher's exclude patterns
	DefaultExclusions []string
}

type entry struct {
	state  types.WatcherState
	engine *watcher.Engine
}

// Registry maps watcher identifiers to their engine and state
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	order    []string
	opts     Options
	sink     EventSink
	notifier ErrorNotifier
	logger   logger.Logger
}

// New creates an empty registry publishing into sink
func New(sink EventSink, log logger.Logger, opts Options) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		opts:    opts,
		sink:    sink,
		logger:  log,
	}
}

// SetErrorNotifier installs an optional notifier for watcher failures
func (r *Registry) SetErrorNotifier(n ErrorNotifier) {
	r.notifier = n
}

// Create registers a new watcher. All-or-nothing: a failed create (including
// a failed auto-start) leaves no watcher registered.
func (r *Registry) Create(cfg types.WatcherConfig) (types.WatcherState, error) {
	if cfg.ID == "" {
		return types.WatcherState{}, fmt.Errorf("%w: empty id", ErrInvalidConfig)
	}
	if cfg.Path == "" {
		return types.WatcherState{}, fmt.Errorf("%w: empty path", ErrInvalidConfig)
	}

	if abs, err := filepath.Abs(cfg.Path); err == nil {
		cfg.Path = abs
	}

	matcherCfg := cfg
	matcherCfg.ExcludePatterns = append(append([]string{}, cfg.ExcludePatterns...), r.opts.DefaultExclusions...)
	m, err := filter.New(matcherCfg)
	if err != nil {
		return types.WatcherState{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	id := cfg.ID
	eng := watcher.NewEngine(cfg, m,
		func(ev types.ChangeEvent) { r.onEvent(id, ev) },
		func(err error) { r.onEngineError(id, err) },
		r.logger,
	)

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return types.WatcherState{}, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	if r.opts.MaxWatchers > 0 && len(r.entries) >= r.opts.MaxWatchers {
		r.mu.Unlock()
		return types.WatcherState{}, fmt.Errorf("%w: limit %d", ErrCapacityExceeded, r.opts.MaxWatchers)
	}

	ent := &entry{
		state: types.WatcherState{
			Config:  cfg,
			Status:  types.WatcherStatusCreated,
			Created: time.Now(),
		},
		engine: eng,
	}
	r.entries[id] = ent
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.logger.Info("Created watcher", logger.WithField("id", id), logger.WithField("path", cfg.Path))
	r.emitStatus(id, types.WatcherStatusCreated, map[string]interface{}{"path": cfg.Path})

	if cfg.AutoStart {
		if _, err := r.Start(id); err != nil {
			// Roll back so a failed create leaves nothing behind
			r.mu.Lock()
			delete(r.entries, id)
			r.removeFromOrder(id)
			r.mu.Unlock()
			r.emitStatus(id, types.WatcherStatusRemoved, nil)
			return types.WatcherState{}, err
		}
	}

	return r.snapshot(id)
}

// Start begins monitoring for a watcher. Starting a running watcher is a
// no-op returning the current state.
func (r *Registry) Start(id string) (types.WatcherState, error) {
	r.mu.Lock()
	ent, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return types.WatcherState{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if ent.state.Status == types.WatcherStatusRunning {
		state := ent.state
		r.mu.Unlock()
		return state, nil
	}
	eng := ent.engine
	r.mu.Unlock()

	if err := eng.Start(); err != nil {
		r.mu.Lock()
		if ent, ok := r.entries[id]; ok {
			ent.state.Status = types.WatcherStatusError
			ent.state.LastError = err.Error()
		}
		r.mu.Unlock()
		r.emitStatus(id, types.WatcherStatusError, map[string]interface{}{"error": err.Error()})
		return types.WatcherState{}, err
	}

	now := time.Now()
	r.mu.Lock()
	if ent, ok := r.entries[id]; ok {
		ent.state.Status = types.WatcherStatusRunning
		ent.state.Started = &now
	}
	r.mu.Unlock()

	r.logger.Info("Started watcher", logger.WithField("id", id))
	r.emitStatus(id, types.WatcherStatusRunning, nil)
	return r.snapshot(id)
}

// Stop halts monitoring for a watcher. Idempotent. A watcher in the error
// state keeps that status; only removal clears it.
func (r *Registry) Stop(id string) (types.WatcherState, error) {
	r.mu.Lock()
	ent, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return types.WatcherState{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	eng := ent.engine
	wasRunning := ent.state.Status == types.WatcherStatusRunning
	r.mu.Unlock()

	// Never hold the registry lock here: the detection loop may be
	// blocked in the event callback, which takes the same lock.
	if err := eng.Stop(); err != nil {
		return types.WatcherState{}, err
	}

	if wasRunning {
		now := time.Now()
		r.mu.Lock()
		if ent, ok := r.entries[id]; ok && ent.state.Status == types.WatcherStatusRunning {
			ent.state.Status = types.WatcherStatusStopped
			ent.state.Stopped = &now
		}
		r.mu.Unlock()

		r.logger.Info("Stopped watcher", logger.WithField("id", id))
		r.emitStatus(id, types.WatcherStatusStopped, nil)
	}

	return r.snapshot(id)
}

// Remove stops a watcher, releases its resources, and deletes it from the
// registry. The removed state is terminal.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	ent, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	// Claim the entry first so concurrent removes cannot double-release
	delete(r.entries, id)
	r.removeFromOrder(id)
	r.mu.Unlock()

	ent.engine.Stop()

	r.logger.Info("Removed watcher", logger.WithField("id", id))
	r.emitStatus(id, types.WatcherStatusRemoved, nil)
	return nil
}

// Get returns a read-only snapshot of one watcher's state
func (r *Registry) Get(id string) (types.WatcherState, error) {
	return r.snapshot(id)
}

// Status returns the external-facing status shape for one watcher. Same
// data as Get; documented as the command-surface contract.
func (r *Registry) Status(id string) (types.WatcherState, error) {
	return r.snapshot(id)
}

// List returns snapshots of all watchers in creation order
func (r *Registry) List() []types.WatcherState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.WatcherState, 0, len(r.order))
	for _, id := range r.order {
		if ent, ok := r.entries[id]; ok {
			out = append(out, ent.state)
		}
	}
	return out
}

// Len returns the number of registered watchers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown stops every engine and reports once all have confirmed stopped.
// Watchers stay registered; the process is expected to exit afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	engines := make([]*watcher.Engine, 0, len(r.entries))
	for _, ent := range r.entries {
		engines = append(engines, ent.engine)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, eng := range engines {
		wg.Add(1)
		go func(e *watcher.Engine) {
			defer wg.Done()
			e.Stop()
		}(eng)
	}
	wg.Wait()
}

// onEvent is the engine callback: bookkeeping, then fan-out. Events already
// in flight for a removed watcher still reach the sink.
func (r *Registry) onEvent(id string, ev types.ChangeEvent) {
	now := time.Now()
	r.mu.Lock()
	if ent, ok := r.entries[id]; ok {
		ent.state.EventCount++
		ent.state.LastEvent = &now
	}
	r.mu.Unlock()

	r.logger.Debug("File event",
		logger.WithField("id", id),
		logger.WithField("type", string(ev.Type)),
		logger.WithField("path", ev.Path))

	if r.sink != nil {
		r.sink.PublishChange(ev)
	}
}

// onEngineError records an unrecoverable watch failure. The watcher stays
// visible in error status rather than silently disappearing.
func (r *Registry) onEngineError(id string, err error) {
	r.mu.Lock()
	if ent, ok := r.entries[id]; ok {
		ent.state.Status = types.WatcherStatusError
		ent.state.LastError = err.Error()
	}
	r.mu.Unlock()

	r.logger.Error("Watcher entered error state", logger.WithField("id", id), logger.WithField("error", err))
	r.emitStatus(id, types.WatcherStatusError, map[string]interface{}{"error": err.Error()})

	if r.notifier != nil {
		r.notifier.NotifyWatcherError(id, err)
	}
}

func (r *Registry) emitStatus(id string, status types.WatcherStatus, details map[string]interface{}) {
	if r.sink == nil {
		return
	}
	r.sink.PublishStatus(types.StatusEvent{
		WatcherID: id,
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	})
}

func (r *Registry) snapshot(id string) (types.WatcherState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[id]
	if !ok {
		return types.WatcherState{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return ent.state, nil
}

// removeFromOrder must be called with the registry lock held
func (r *Registry) removeFromOrder(id string) {
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
