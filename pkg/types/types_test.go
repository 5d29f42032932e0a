package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/filesentry/filesentry/pkg/types"
)

func TestFileChangeMessageShape(t *testing.T) {
	ev := types.ChangeEvent{
		Type:      types.EventCreated,
		Path:      "/watch/a.txt",
		Filename:  "a.txt",
		ParentDir: "/watch",
		Timestamp: time.Now(),
		WatcherID: "w1",
	}

	data, err := json.Marshal(types.NewFileChangeMessage(ev))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded["type"] != "file_change" {
		t.Errorf("type = %v", decoded["type"])
	}
	if decoded["watcher_id"] != "w1" {
		t.Errorf("watcher_id = %v", decoded["watcher_id"])
	}

	event, ok := decoded["event"].(map[string]interface{})
	if !ok {
		t.Fatal("event body missing")
	}
	if event["event_type"] != "created" {
		t.Errorf("event_type = %v", event["event_type"])
	}
	if event["filename"] != "a.txt" {
		t.Errorf("filename = %v", event["filename"])
	}
	if event["parent_dir"] != "/watch" {
		t.Errorf("parent_dir = %v", event["parent_dir"])
	}
	if _, present := event["watcher_id"]; present {
		t.Error("watcher id must not repeat inside the event body")
	}
}

func TestHeartbeatMessage(t *testing.T) {
	at := time.Now()
	msg := types.NewHeartbeatMessage(at)

	if msg.Type != types.MessageHeartbeat {
		t.Errorf("Type = %q", msg.Type)
	}
	if !msg.Timestamp.Equal(at) {
		t.Error("heartbeat timestamp not preserved")
	}
}

func TestConnectedMessage(t *testing.T) {
	msg := types.NewConnectedMessage("client-7")
	if msg.Type != types.MessageConnected || msg.ClientID != "client-7" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestWatcherStateID(t *testing.T) {
	st := types.WatcherState{Config: types.WatcherConfig{ID: "w9"}}
	if st.ID() != "w9" {
		t.Errorf("ID() = %q", st.ID())
	}
}
