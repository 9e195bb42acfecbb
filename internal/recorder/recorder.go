// Package recorder keeps a running account of what the camera has captured.
// A Tracker sits beside the other observers and feeds the status snapshot.
package recorder

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
)

// RecordingResult contains the outcome of a completed recording.
type RecordingResult struct {
	OutputPath string
	Duration   time.Duration
	StartedAt  time.Time
	Err        error
}

// RecorderState is the aggregate written to status.json.
type RecorderState struct {
	Recording      bool      `json:"recording"`
	StartTime      time.Time `json:"start_time,omitempty"`
	Duration       int       `json:"duration"` // seconds
	Recordings     int       `json:"recordings"`
	Failures       int       `json:"failures"`
	LastOutputPath string    `json:"last_output_path,omitempty"`
	Photos         int       `json:"photos"`
	LastPhotoBytes int       `json:"last_photo_bytes,omitempty"`
	LastPhotoSize  string    `json:"last_photo_size,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Tracker implements camera.VideoObserver and camera.PhotoObserver.
type Tracker struct {
	mu    sync.Mutex
	state RecorderState
	now   func() time.Time

	logger     *diaglog.Logger
	onFinished func(RecordingResult)
	onChange   func()
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// SetLogger injects the diagnostic logger
func (t *Tracker) SetLogger(l *diaglog.Logger) {
	t.logger = l
}

// OnFinished registers a callback for every finished recording, including
// failed ones.
func (t *Tracker) OnFinished(fn func(RecordingResult)) {
	t.mu.Lock()
	t.onFinished = fn
	t.mu.Unlock()
}

// OnChange registers a callback invoked after each state change
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// State returns a snapshot with the duration brought up to date
func (t *Tracker) State() RecorderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	if s.Recording && !s.StartTime.IsZero() {
		s.Duration = int(t.now().Sub(s.StartTime).Seconds())
	}
	return s
}

func (t *Tracker) RecordingStarted(err error) {
	t.mu.Lock()
	if err != nil {
		t.state.Failures++
		t.state.LastError = err.Error()
	} else {
		t.state.Recording = true
		t.state.StartTime = t.now()
		t.state.Duration = 0
	}
	changed := t.onChange
	t.mu.Unlock()

	t.logger.Event(diaglog.ComponentRecorder, diaglog.EventRecordingStarted, map[string]interface{}{
		"ok": err == nil,
	})
	if changed != nil {
		changed()
	}
}

// RecordingFinished may be called twice for one recording when the file is
// also saved to the library. The second call only updates the output path.
func (t *Tracker) RecordingFinished(path string, err error) {
	t.mu.Lock()
	res := RecordingResult{OutputPath: path, Err: err}
	wasRecording := t.state.Recording
	if wasRecording {
		res.StartedAt = t.state.StartTime
		res.Duration = t.now().Sub(t.state.StartTime)
		t.state.Duration = int(res.Duration.Seconds())
		t.state.Recording = false
		t.state.Recordings++
	}
	if err != nil {
		t.state.Failures++
		t.state.LastError = err.Error()
	} else if path != "" {
		t.state.LastOutputPath = path
	}
	finished, changed := t.onFinished, t.onChange
	t.mu.Unlock()

	payload := map[string]interface{}{
		"output_path": path,
		"duration_s":  int(res.Duration.Seconds()),
		"ok":          err == nil,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	t.logger.Event(diaglog.ComponentRecorder, diaglog.EventRecordingFinished, payload)

	if finished != nil {
		finished(res)
	}
	if changed != nil {
		changed()
	}
}

func (t *Tracker) PhotoCaptured(img image.Image, data []byte) {
	t.mu.Lock()
	t.state.Photos++
	t.state.LastPhotoBytes = len(data)
	if img != nil {
		b := img.Bounds()
		t.state.LastPhotoSize = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
	}
	changed := t.onChange
	t.mu.Unlock()

	if changed != nil {
		changed()
	}
}
