package sentry_test

import (
	"context"
	"testing"
	"time"

	"github.com/filesentry/filesentry/pkg/config"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/sentry"
	"github.com/filesentry/filesentry/pkg/types"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() logger.Logger {
	return logger.CreateLoggerWithOutput("error", discard{})
}

func TestSentry_HeartbeatDelivery(t *testing.T) {
	cfg := config.Default()
	cfg.HeartbeatSeconds = 1

	core := sentry.New(cfg, testLogger())
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer core.Stop()

	sub := core.Broadcaster().Subscribe("hb", nil)

	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("channel closed before heartbeat")
		}
		if msg.Type != types.MessageHeartbeat {
			t.Errorf("got %q, want heartbeat", msg.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat within the interval")
	}
}

func TestSentry_BootWatchers(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Watchers = []types.WatcherConfig{
		{ID: "boot", Path: dir, Patterns: []string{"*.txt"}, AutoStart: true},
	}

	core := sentry.New(cfg, testLogger())
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer core.Stop()

	state, err := core.Registry().Get("boot")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if state.Status != types.WatcherStatusRunning {
		t.Errorf("boot watcher status = %q, want running", state.Status)
	}
}

func TestSentry_StopClosesSubscribers(t *testing.T) {
	cfg := config.Default()

	core := sentry.New(cfg, testLogger())
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	sub := core.Broadcaster().Subscribe("client", nil)
	core.Stop()

	select {
	case _, ok := <-sub.Messages():
		if ok {
			// Drain any message buffered before shutdown
			for range sub.Messages() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed on shutdown")
	}

	// Stop is idempotent
	core.Stop()
}
