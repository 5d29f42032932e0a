package test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/filesentry/filesentry/internal/transport"
	"github.com/filesentry/filesentry/pkg/config"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/sentry"
	"github.com/filesentry/filesentry/pkg/types"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// sseClient reads a server-sent event stream into a message channel
type sseClient struct {
	resp     *http.Response
	messages chan types.Message
}

func openStream(t *testing.T, baseURL, query string) *sseClient {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/watchers/stream"+query, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d, want 200", resp.StatusCode)
	}

	c := &sseClient{resp: resp, messages: make(chan types.Message, 64)}
	t.Cleanup(func() { resp.Body.Close() })

	go func() {
		defer close(c.messages)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var msg types.Message
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
				continue
			}
			c.messages <- msg
		}
	}()

	return c
}

// next returns the next message matching the predicate, or fails the test
func (c *sseClient) next(t *testing.T, timeout time.Duration, match func(types.Message) bool) types.Message {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok {
				t.Fatal("stream closed while waiting for message")
			}
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream message")
		}
	}
}

func startService(t *testing.T) (*httptest.Server, *sentry.Sentry) {
	t.Helper()

	cfg := config.Default()
	cfg.HeartbeatSeconds = 1

	log := logger.CreateLoggerWithOutput("error", discard{})
	core := sentry.New(cfg, log)
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("core.Start() error: %v", err)
	}
	t.Cleanup(core.Stop)

	srv := httptest.NewServer(transport.NewServer(core, log).Handler())
	t.Cleanup(srv.Close)
	return srv, core
}

func createWatcher(t *testing.T, baseURL string, cfg types.WatcherConfig) {
	t.Helper()
	data, _ := json.Marshal(cfg)
	resp, err := http.Post(baseURL+"/watchers", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
}

func TestEndToEnd_FileChangeStream(t *testing.T) {
	srv, _ := startService(t)
	dir := t.TempDir()

	stream := openStream(t, srv.URL, "")
	connected := stream.next(t, 2*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageConnected
	})
	if connected.ClientID == "" {
		t.Error("connected message carries no client id")
	}

	createWatcher(t, srv.URL, types.WatcherConfig{
		ID:        "w1",
		Path:      dir,
		Patterns:  []string{"*.txt"},
		AutoStart: true,
	})

	// Watcher lifecycle is visible on the stream
	stream.next(t, 2*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageWatcherStatus && m.WatcherID == "w1" && m.Status == types.WatcherStatusRunning
	})

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	change := stream.next(t, 5*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageFileChange && m.WatcherID == "w1" &&
			m.Event != nil && m.Event.Type == types.EventCreated && m.Event.Filename == "a.txt"
	})
	if change.Event.ParentDir != dir {
		t.Errorf("parent_dir = %q, want %q", change.Event.ParentDir, dir)
	}

	// Remove the watcher; further writes must produce no more file changes
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/watchers/w1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	stream.next(t, 2*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageWatcherStatus && m.WatcherID == "w1" && m.Status == types.WatcherStatusRemoved
	})

	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bye"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(1500 * time.Millisecond)
	for {
		select {
		case msg, ok := <-stream.messages:
			if !ok {
				t.Fatal("stream closed early")
			}
			if msg.Type == types.MessageFileChange && msg.WatcherID == "w1" {
				t.Fatalf("received file change for removed watcher: %+v", msg)
			}
		case <-deadline:
			return
		}
	}
}

func TestEndToEnd_FilteredSubscription(t *testing.T) {
	srv, _ := startService(t)
	dirA := t.TempDir()
	dirB := t.TempDir()

	createWatcher(t, srv.URL, types.WatcherConfig{ID: "wa", Path: dirA, AutoStart: true})
	createWatcher(t, srv.URL, types.WatcherConfig{ID: "wb", Path: dirB, AutoStart: true})

	onlyB := openStream(t, srv.URL, "?client_id=only-b&watchers=wb")
	onlyB.next(t, 2*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageConnected
	})

	if err := os.WriteFile(filepath.Join(dirA, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dirB, "b.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	msg := onlyB.next(t, 5*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageFileChange
	})
	if msg.WatcherID != "wb" {
		t.Errorf("filtered stream received watcher %q, want wb", msg.WatcherID)
	}
}

func TestEndToEnd_HeartbeatOnStream(t *testing.T) {
	srv, _ := startService(t)

	stream := openStream(t, srv.URL, "?client_id=hb")
	stream.next(t, 3*time.Second, func(m types.Message) bool {
		return m.Type == types.MessageHeartbeat
	})
}
