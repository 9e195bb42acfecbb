package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusSnapshot is the daemon state written after every change
type StatusSnapshot struct {
	State         string      `json:"state"`          // controller lifecycle state
	Recording     bool        `json:"recording"`      // a recording is active or finishing
	Position      string      `json:"position"`       // active camera
	FlashMode     string      `json:"flash_mode"`     // flash applied to the next photo
	OutputPath    string      `json:"output_path"`    // recording file
	Capabilities  interface{} `json:"capabilities"`   // what the last configuration wired up
	Degradations  []string    `json:"degradations"`   // missing hardware, human readable
	RecorderState interface{} `json:"recorder_state"` // recordings and photos so far
	LastAction    string      `json:"last_action"`    // last command executed
	LastError     string      `json:"last_error"`     // last error message
	EventClients  int         `json:"event_clients"`  // connected websocket clients
	MQTTConnected bool        `json:"mqtt_connected"` // broker notifier active
	ConfigFile    string      `json:"config_file"`    // settings file in use
	Timestamp     time.Time   `json:"timestamp"`      // snapshot time
	DaemonPID     int         `json:"daemon_pid"`     // process serving the camera
	DaemonVersion string      `json:"daemon_version"` // build version
}

// StatusPath is ~/.cache/fmcamera/status.json
func StatusPath() string {
	return filepath.Join(CacheDir(), "status.json")
}

// WriteStatus persists the snapshot using an atomic write
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(), status)
}

// ReadStatus loads the last snapshot
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath())
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}
