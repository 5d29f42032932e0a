// Package watcher wraps one fsnotify source per watcher root and turns raw
// notifications into normalized, filtered change events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/filesentry/filesentry/pkg/filter"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/types"
)

// Callback receives every change event that survives filtering. Supplied by
// the registry at construction.
type Callback func(types.ChangeEvent)

// ErrorHook is invoked once when the engine transitions to the error state
type ErrorHook func(err error)

// Engine monitors one root path and drives the per-watcher state machine
// Stopped -> Starting -> Running -> Stopping -> Stopped, with
// Running -> Error on unrecoverable watch failure.
type Engine struct {
	cfg      types.WatcherConfig
	matcher  *filter.Matcher
	callback Callback
	onError  ErrorHook
	logger   logger.Logger

	mu      sync.Mutex
	state   types.EngineState
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewEngine creates an engine bound to one watcher config. The callback and
// error hook are explicit collaborators; the engine never reaches back into
// its owner.
func NewEngine(cfg types.WatcherConfig, matcher *filter.Matcher, callback Callback, onError ErrorHook, log logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		matcher:  matcher,
		callback: callback,
		onError:  onError,
		logger:   log.WithWatcher(cfg.ID),
		state:    types.EngineStopped,
	}
}

// State returns the current engine state
func (e *Engine) State() types.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the error that moved the engine to the error state
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Start begins native monitoring of the root path. Idempotent: starting a
// running engine is a no-op. An errored engine only accepts removal.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// An in-flight Stop owns the handles until its loop confirms exit;
	// wait for it before deciding what to do.
	for e.state == types.EngineStopping {
		done := e.done
		e.mu.Unlock()
		if done != nil {
			<-done
		}
		e.mu.Lock()
	}

	switch e.state {
	case types.EngineRunning, types.EngineStarting:
		return nil
	case types.EngineError:
		return fmt.Errorf("%w: %v", ErrEngineFailed, e.lastErr)
	}

	e.state = types.EngineStarting

	info, err := os.Stat(e.cfg.Path)
	if err != nil {
		e.state = types.EngineStopped
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPathNotFound, e.cfg.Path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermission, e.cfg.Path)
		}
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		e.state = types.EngineStopped
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(e.cfg.Path); err != nil {
		fsw.Close()
		e.state = types.EngineStopped
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermission, e.cfg.Path)
		}
		return fmt.Errorf("failed to watch %s: %w", e.cfg.Path, err)
	}

	if e.cfg.Recursive && info.IsDir() {
		if err := addSubdirectories(fsw, e.cfg.Path, e.logger); err != nil {
			fsw.Close()
			e.state = types.EngineStopped
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.fsw = fsw
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = types.EngineRunning

	go e.run(ctx, fsw, e.done)

	e.logger.Info("Started watching", logger.WithField("path", e.cfg.Path), logger.WithField("recursive", e.cfg.Recursive))
	return nil
}

// Stop halts monitoring and releases the native watch handle. Idempotent.
// Returns once the detection loop has confirmed exit.
func (e *Engine) Stop() error {
	e.mu.Lock()

	switch e.state {
	case types.EngineStopped, types.EngineError:
		e.mu.Unlock()
		return nil
	}

	e.state = types.EngineStopping
	cancel := e.cancel
	done := e.done
	fsw := e.fsw
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if fsw != nil {
		fsw.Close()
	}

	e.mu.Lock()
	// Release only the handles this call captured; a concurrent Start may
	// have installed fresh ones once the state left Stopping.
	if e.done == done {
		if e.state == types.EngineStopping {
			e.state = types.EngineStopped
		}
		e.fsw = nil
		e.cancel = nil
		e.done = nil
	}
	e.mu.Unlock()

	e.logger.Info("Stopped watching", logger.WithField("path", e.cfg.Path))
	return nil
}

// run is the detection loop. It owns no shared state beyond the fsnotify
// handle and exits on context cancellation or channel closure.
func (e *Engine) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if e.handleRaw(ctx, fsw, event) {
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			e.logger.Warn("Watch error", logger.WithField("error", err))
		}
	}
}

// handleRaw normalizes and dispatches one raw notification. Returns true
// when the engine has failed and the loop must exit.
func (e *Engine) handleRaw(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	// Root removal is unrecoverable
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Clean(event.Name) == filepath.Clean(e.cfg.Path) {
		e.fail(fmt.Errorf("%w: %s", ErrPathNotFound, e.cfg.Path))
		return true
	}

	// Chmod-only notifications carry no content change
	if event.Op == fsnotify.Chmod {
		return false
	}

	var kind types.EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = types.EventCreated
	case event.Op&fsnotify.Write != 0:
		kind = types.EventModified
	case event.Op&fsnotify.Remove != 0:
		kind = types.EventDeleted
	case event.Op&fsnotify.Rename != 0:
		kind = types.EventMoved
	default:
		kind = types.EventModified
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()

		// Keep the subtree covered as new directories appear
		if isDir && kind == types.EventCreated && e.cfg.Recursive {
			if err := addSubdirectories(fsw, event.Name, e.logger); err == nil {
				if err := fsw.Add(event.Name); err != nil {
					e.logger.Warn("Failed to watch new directory", logger.WithField("path", event.Name), logger.WithField("error", err))
				}
			}
		}
	}

	if !e.matcher.Matches(event.Name, isDir) {
		return false
	}

	ev := types.ChangeEvent{
		Type:      kind,
		Path:      event.Name,
		Filename:  filepath.Base(event.Name),
		ParentDir: filepath.Dir(event.Name),
		IsDir:     isDir,
		Timestamp: time.Now(),
		WatcherID: e.cfg.ID,
	}
	if kind == types.EventMoved {
		ev.SrcPath = event.Name
	}

	select {
	case <-ctx.Done():
		return true
	default:
	}

	e.dispatch(ev)
	return false
}

// dispatch invokes the callback with panic recovery so a broken consumer
// cannot kill the detection loop.
func (e *Engine) dispatch(ev types.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Event callback panicked", logger.WithField("panic", r), logger.WithField("path", ev.Path))
		}
	}()
	e.callback(ev)
}

// fail moves the engine to the error state and notifies the owner once
func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.state == types.EngineError {
		e.mu.Unlock()
		return
	}
	e.state = types.EngineError
	e.lastErr = err
	fsw := e.fsw
	cancel := e.cancel
	e.fsw = nil
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if fsw != nil {
		fsw.Close()
	}

	e.logger.Error("Watcher failed", logger.WithField("error", err))

	if e.onError != nil {
		e.onError(err)
	}
}

// addSubdirectories walks root and adds every directory below it to the
// fsnotify handle. Unreadable subdirectories are logged and skipped.
func addSubdirectories(fsw *fsnotify.Watcher, root string, log logger.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("Skipping unreadable path", logger.WithField("path", path), logger.WithField("error", err))
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			log.Warn("Failed to watch directory", logger.WithField("path", path), logger.WithField("error", err))
		}
		return nil
	})
}
