// Package diaglog provides structured NDJSON diagnostic logging for the
// capture pipeline. Enabled by FMCAMERA_DEBUG=true; otherwise every Log call
// is a no-op and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// ── Component labels ────────────────────────────────────────────────────────

const (
	ComponentController = "capture-controller"
	ComponentState      = "state-machine"
	ComponentReducer    = "photo-reducer"
	ComponentSession    = "capture-session"
	ComponentWriter     = "asset-writer"
	ComponentLibrary    = "photo-library"
	ComponentEvents     = "event-stream"
	ComponentMQTT       = "mqtt-notify"
	ComponentRecorder   = "recorder"
	ComponentDaemon     = "fmcamera-daemon"
)

// ── Event names ─────────────────────────────────────────────────────────────

const (
	EventConfigure         = "configure"
	EventConfigureStep     = "configure_step"
	EventAuthorization     = "authorization"
	EventStateTransition   = "state_transition"
	EventRecordingStart    = "recording_start"
	EventRecordingRebuild  = "recording_rebuild"
	EventRecordingStop     = "recording_stop"
	EventRecordingFinished = "recording_finished"
	EventTimelineAnchor    = "timeline_anchor"
	EventSampleDropped     = "sample_dropped"
	EventAppendFailed      = "append_failed"
	EventPhotoRequested    = "photo_requested"
	EventPhotoCaptured     = "photo_captured"
	EventReduceAttempt     = "reduce_attempt"
	EventReduceDone        = "reduce_done"
	EventReduceFailed      = "reduce_failed"
	EventCameraFlip        = "camera_flip"
	EventSave              = "library_save"
	EventPrecondition      = "precondition_failed"
	EventClientConnect     = "client_connect"
	EventClientDrop        = "client_drop"
	EventSettingsChanged   = "settings_changed"
	EventProcessStart      = "process_start"
	EventProcessExit       = "process_exit"
	EventCommand           = "command"
	EventPublish           = "publish"
	EventRecordingStarted  = "recording_started"
	EventThumbnail         = "thumbnail"
	EventStartup           = "startup"
	EventShutdown          = "shutdown"
)

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano
	Component string      `json:"component"`
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"` // one id per recording attempt
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// DefaultMaxSize caps the live log file before it is rotated
const DefaultMaxSize = 10 * 1024 * 1024

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, DefaultMaxSize)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry and appends it as one line. Credential-like payload
// fields are redacted first.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Event is shorthand for Log with a map payload
func (l *Logger) Event(component, event string, payload map[string]interface{}) {
	if l == nil || !l.enabled {
		return
	}
	entry := LogEntry{Component: component, Event: event}
	if len(payload) > 0 {
		entry.Payload = payload
	}
	l.Log(entry)
}

// Enabled reports whether entries are being written
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether FMCAMERA_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("FMCAMERA_DEBUG") == "true"
}

// DefaultPath returns FMCAMERA_LOG_PATH or the temp-dir fallback
func DefaultPath() string {
	if p := os.Getenv("FMCAMERA_LOG_PATH"); p != "" {
		return p
	}
	return os.TempDir() + "/fmcamera-debug.log"
}

// NewNoOp returns a logger where every Log call is a no-op.
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
