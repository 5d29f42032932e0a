// Package sentry is the composition root: it wires the registry, the
// broadcaster, and the heartbeat scheduler into one service with explicit
// construction and shutdown.
package sentry

import (
	"context"
	"sync"
	"time"

	"github.com/filesentry/filesentry/pkg/broadcaster"
	"github.com/filesentry/filesentry/pkg/config"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/notifier"
	"github.com/filesentry/filesentry/pkg/registry"
)

// Sentry owns the long-lived watcher/broadcast core
type Sentry struct {
	cfg    *config.Config
	logger logger.Logger

	registry    *registry.Registry
	broadcaster *broadcaster.Broadcaster

	mu      sync.Mutex
	group   *SafeGroup
	cancel  context.CancelFunc
	started bool
}

// New builds the core from a server configuration. Nothing runs until Start.
func New(cfg *config.Config, log logger.Logger) *Sentry {
	b := broadcaster.New(cfg.QueueSize, log)
	r := registry.New(b, log, registry.Options{
		MaxWatchers:       cfg.MaxWatchers,
		DefaultExclusions: cfg.Exclusions(),
	})
	r.SetErrorNotifier(notifier.New(notifier.Config{Enabled: cfg.Notifications}, log))

	return &Sentry{
		cfg:         cfg,
		logger:      log,
		registry:    r,
		broadcaster: b,
	}
}

// Registry returns the watcher registry
func (s *Sentry) Registry() *registry.Registry { return s.registry }

// Broadcaster returns the event broadcaster
func (s *Sentry) Broadcaster() *broadcaster.Broadcaster { return s.broadcaster }

// Start creates watchers declared in the configuration and begins the
// heartbeat scheduler.
func (s *Sentry) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	group, ctx := NewSafeGroup(ctx, s.logger)
	s.group = group
	s.mu.Unlock()

	for _, wc := range s.cfg.Watchers {
		if _, err := s.registry.Create(wc); err != nil {
			s.logger.Error("Failed to create configured watcher",
				logger.WithField("id", wc.ID),
				logger.WithField("error", err))
		}
	}

	interval := s.cfg.Heartbeat()
	group.Go(func() error {
		s.runHeartbeat(ctx, interval)
		return nil
	})

	s.logger.Info("Service started",
		logger.WithField("max_watchers", s.cfg.MaxWatchers),
		logger.WithField("heartbeat", interval))
	return nil
}

// Stop shuts the core down: every engine is stopped and confirmed, then all
// subscriber queues are closed.
func (s *Sentry) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	group := s.group
	s.cancel = nil
	s.group = nil
	s.started = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.registry.Shutdown()
	s.broadcaster.Close()

	if group != nil {
		group.Wait()
	}

	s.logger.Info("Service stopped")
}

// runHeartbeat drives the broadcaster's heartbeat on a fixed interval
func (s *Sentry) runHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcaster.Heartbeat()
		}
	}
}
