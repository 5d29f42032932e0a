// Package types provides core types shared across filesentry
package types

import (
	"time"
)

// EventType classifies a normalized file-system change
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
	EventMoved    EventType = "moved"
)

// WatcherStatus represents the externally visible lifecycle of a watcher
type WatcherStatus string

const (
	WatcherStatusCreated WatcherStatus = "created"
	WatcherStatusRunning WatcherStatus = "running"
	WatcherStatusStopped WatcherStatus = "stopped"
	WatcherStatusError   WatcherStatus = "error"
	WatcherStatusRemoved WatcherStatus = "removed"
)

// EngineState represents the internal state machine of a watcher engine
type EngineState string

const (
	EngineStopped  EngineState = "stopped"
	EngineStarting EngineState = "starting"
	EngineRunning  EngineState = "running"
	EngineStopping EngineState = "stopping"
	EngineError    EngineState = "error"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// WatcherConfig describes one file watcher. Immutable after creation.
type WatcherConfig struct {
	ID                 string   `json:"id" yaml:"id"`
	Path               string   `json:"path" yaml:"path"`
	Patterns           []string `json:"file_patterns,omitempty" yaml:"filePatterns,omitempty"`
	ExcludePatterns    []string `json:"exclude_patterns,omitempty" yaml:"excludePatterns,omitempty"`
	SpecificFiles      []string `json:"specific_files,omitempty" yaml:"specificFiles,omitempty"`
	Recursive          bool     `json:"recursive" yaml:"recursive"`
	IncludeDirectories bool     `json:"include_directories" yaml:"includeDirectories"`
	AutoStart          bool     `json:"auto_start" yaml:"autoStart"`
}

// ChangeEvent is a normalized, filtered file-system notification.
// Immutable once constructed; shared by value across goroutines.
type ChangeEvent struct {
	Type      EventType `json:"event_type"`
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	ParentDir string    `json:"parent_dir"`
	IsDir     bool      `json:"is_directory"`
	SrcPath   string    `json:"src_path,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// WatcherID identifies the emitting watcher. Carried on the message
	// envelope rather than the event body.
	WatcherID string `json:"-"`
}

// StatusEvent is a lifecycle notification about one watcher
type StatusEvent struct {
	WatcherID string                 `json:"watcher_id"`
	Status    WatcherStatus          `json:"status"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// WatcherState is the registry's view of one watcher. Snapshots of it are
// returned by Get/List/Status; the registry owns the live copy.
type WatcherState struct {
	Config     WatcherConfig `json:"config"`
	Status     WatcherStatus `json:"status"`
	Created    time.Time     `json:"created"`
	Started    *time.Time    `json:"started,omitempty"`
	Stopped    *time.Time    `json:"stopped,omitempty"`
	LastEvent  *time.Time    `json:"last_event,omitempty"`
	EventCount uint64        `json:"event_count"`
	LastError  string        `json:"last_error,omitempty"`
}

// ID returns the watcher identifier
func (s *WatcherState) ID() string {
	return s.Config.ID
}

// MessageType identifies the kind of a broadcast message envelope
type MessageType string

const (
	MessageConnected     MessageType = "connected"
	MessageFileChange    MessageType = "file_change"
	MessageWatcherStatus MessageType = "watcher_status"
	MessageHeartbeat     MessageType = "heartbeat"
)

// Message is the wire envelope delivered to subscribers. Field names follow
// the streaming protocol consumed by clients.
type Message struct {
	Type      MessageType            `json:"type"`
	ClientID  string                 `json:"client_id,omitempty"`
	WatcherID string                 `json:"watcher_id,omitempty"`
	Event     *ChangeEvent           `json:"event,omitempty"`
	Status    WatcherStatus          `json:"status,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewFileChangeMessage wraps a change event in its wire envelope
func NewFileChangeMessage(ev ChangeEvent) Message {
	e := ev
	return Message{
		Type:      MessageFileChange,
		WatcherID: ev.WatcherID,
		Event:     &e,
		Timestamp: time.Now(),
	}
}

// NewStatusMessage wraps a status event in its wire envelope
func NewStatusMessage(se StatusEvent) Message {
	return Message{
		Type:      MessageWatcherStatus,
		WatcherID: se.WatcherID,
		Status:    se.Status,
		Details:   se.Details,
		Timestamp: se.Timestamp,
	}
}

// NewHeartbeatMessage builds the periodic keep-alive envelope
func NewHeartbeatMessage(at time.Time) Message {
	return Message{
		Type:      MessageHeartbeat,
		Timestamp: at,
	}
}

// NewConnectedMessage builds the envelope sent once when a client attaches
func NewConnectedMessage(clientID string) Message {
	return Message{
		Type:      MessageConnected,
		ClientID:  clientID,
		Timestamp: time.Now(),
	}
}
