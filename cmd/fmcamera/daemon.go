package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/camera"
	"github.com/tiroq/fmcamera/internal/config"
	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/eventstream"
	"github.com/tiroq/fmcamera/internal/imaging"
	"github.com/tiroq/fmcamera/internal/ipc"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/mqttnotify"
	"github.com/tiroq/fmcamera/internal/platform"
	"github.com/tiroq/fmcamera/internal/recorder"
	"github.com/tiroq/fmcamera/internal/statemachine"
)

const (
	thumbnailWidth   = 320
	thumbnailTimeout = 10 * time.Second
)

var errStopped = errors.New("fmcamera is shutting down")

// daemon routes commands and settings changes to the controller and keeps
// status.json current. Controller calls run on main.
type daemon struct {
	ctrl    *camera.Controller
	main    platform.Queue
	tracker *recorder.Tracker
	hub     *eventstream.Hub     // nil when the event stream is disabled
	mqtt    *mqttnotify.Notifier // nil without a broker
	logger  *diaglog.Logger

	configFile string
	thumbPath  string

	mu         sync.Mutex
	cfg        *config.Config
	lastAction string
	lastError  string

	quit     chan struct{}
	quitOnce sync.Once
	stopped  chan struct{}
	stopOnce sync.Once
	thumbs   sync.WaitGroup
}

func newDaemon(ctrl *camera.Controller, cfg *config.Config, tracker *recorder.Tracker, logger *diaglog.Logger) *daemon {
	d := &daemon{
		ctrl:      ctrl,
		main:      platform.Immediate{},
		tracker:   tracker,
		logger:    logger,
		cfg:       cfg,
		thumbPath: filepath.Join(ipc.CacheDir(), "thumbnail.jpg"),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	tracker.OnChange(d.statusChanged)
	tracker.OnFinished(d.recordingFinished)
	return d
}

// observers returns everything that listens to the controller
func (d *daemon) observers() (camera.VideoObservers, camera.PhotoObservers) {
	video := camera.VideoObservers{d.tracker}
	photo := camera.PhotoObservers{d.tracker}
	if d.hub != nil {
		video = append(video, d.hub)
		photo = append(photo, d.hub)
	}
	if d.mqtt != nil {
		video = append(video, d.mqtt)
		photo = append(photo, d.mqtt)
	}
	return video, photo
}

// dispatch parses and runs a command from any source
func (d *daemon) dispatch(raw string) error {
	cmd, err := ipc.ParseCommand(raw)
	if err != nil {
		errLog.Printf("Unknown command: %s", raw)
		return err
	}
	return d.handleCommand(cmd)
}

// onMain runs fn on the main queue and waits for its result. It must not
// be called from work already running on that queue.
func (d *daemon) onMain(fn func() error) error {
	done := make(chan error, 1)
	d.main.Dispatch(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-d.stopped:
		return errStopped
	}
}

// stop releases callers waiting in onMain. The main queue may be closed
// afterwards.
func (d *daemon) stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

// handleCommand processes one control command on the main queue. Commands
// arrive from the file watcher, websocket clients and the broker.
func (d *daemon) handleCommand(cmd ipc.Command) error {
	outLog.Printf("Received command: %s", cmd)

	err := d.onMain(func() error { return d.control(cmd) })

	d.mu.Lock()
	d.lastAction = string(cmd)
	if err != nil {
		d.lastError = err.Error()
	}
	d.mu.Unlock()

	payload := map[string]interface{}{"command": string(cmd), "ok": err == nil}
	if err != nil {
		payload["error"] = err.Error()
		errLog.Printf("%s failed: %v", cmd, err)
	}
	d.logger.Event(diaglog.ComponentDaemon, diaglog.EventCommand, payload)
	d.statusChanged()
	return err
}

func (d *daemon) control(cmd ipc.Command) error {
	var err error
	switch cmd {
	case ipc.CmdStart:
		err = d.ctrl.StartRecording()
	case ipc.CmdStop:
		err = d.ctrl.StopRecording()
	case ipc.CmdToggle:
		if d.ctrl.IsRecording() {
			err = d.ctrl.StopRecording()
		} else {
			err = d.ctrl.StartRecording()
		}
	case ipc.CmdPhoto:
		err = d.ctrl.TakePhoto()
	case ipc.CmdFlip:
		err = d.ctrl.FlipCamera(d.ctrl.Position().Opposite())
	case ipc.CmdFlashOn:
		err = d.ctrl.SetFlashMode(media.FlashOn)
	case ipc.CmdFlashOff:
		err = d.ctrl.SetFlashMode(media.FlashOff)
	case ipc.CmdFlashAuto:
		err = d.ctrl.SetFlashMode(media.FlashAuto)
	case ipc.CmdReconfigure:
		err = d.ctrl.Reconfigure()
	case ipc.CmdQuit:
		outLog.Println("Quit command received - shutting down")
		d.requestQuit()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	return err
}

func (d *daemon) requestQuit() {
	d.quitOnce.Do(func() { close(d.quit) })
}

// applySettings reacts to a rewritten config file
func (d *daemon) applySettings(next *config.Config, err error) {
	if err != nil {
		errLog.Printf("Ignoring invalid config change: %v", err)
		return
	}
	d.mu.Lock()
	prev := d.cfg
	d.mu.Unlock()

	changes, err := config.Changes(prev, next)
	if err != nil {
		errLog.Printf("Failed to diff config: %v", err)
		return
	}
	if len(changes) == 0 {
		return
	}
	names := make([]string, 0, len(changes))
	cameraChanged := false
	for _, ch := range changes {
		outLog.Printf("Setting changed: %s", ch)
		if needsRestart(ch.Path) {
			outLog.Printf("%s takes effect after restarting fmcamera serve", ch.Path)
		} else {
			cameraChanged = true
		}
		names = append(names, ch.Path)
	}
	d.logger.Event(diaglog.ComponentDaemon, diaglog.EventSettingsChanged, map[string]interface{}{
		"changed":  names,
		"reconfig": cameraChanged,
	})

	d.mu.Lock()
	d.cfg = next
	d.mu.Unlock()
	// reconfiguring cancels an active recording, so restart-only edits
	// leave the pipeline alone
	if cameraChanged {
		cam := next.Camera()
		if err := d.onMain(func() error { return d.ctrl.ApplyConfig(cam) }); err != nil {
			errLog.Printf("Failed to apply config: %v", err)
		}
	}
	d.statusChanged()
}

// needsRestart reports settings bound when serve starts
func needsRestart(path string) bool {
	for _, prefix := range []string{"devices", "events", "mqtt", "library_dir"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// waitConfigured waits for the first configuration to settle. Configure
// completes asynchronously once library access is granted.
func (d *daemon) waitConfigured(timeout time.Duration) bool {
	return waitFor(func() bool {
		st := d.ctrl.State()
		return st != statemachine.Unconfigured && st != statemachine.Configuring
	}, timeout)
}

// recordingFinished logs the file and refreshes the thumbnail. Only the
// writer's own output file is thumbnailed; library copies are skipped.
func (d *daemon) recordingFinished(res recorder.RecordingResult) {
	if res.Err != nil || res.OutputPath == "" {
		return
	}
	if info, err := os.Stat(res.OutputPath); err == nil {
		outLog.Printf("Recording saved: %s (%d bytes, %s)", res.OutputPath, info.Size(), res.Duration.Round(time.Second))
	}
	if res.OutputPath != d.ctrl.OutputPath() {
		return
	}
	d.thumbs.Add(1)
	go func() {
		defer d.thumbs.Done()
		if err := d.writeThumbnail(); err != nil {
			errLog.Printf("Thumbnail failed: %v", err)
		}
	}()
}

func (d *daemon) writeThumbnail() error {
	ctx, cancel := context.WithTimeout(context.Background(), thumbnailTimeout)
	defer cancel()

	img, err := d.ctrl.Thumbnail(ctx, 0)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, imaging.Scale(img, thumbnailWidth), &jpeg.Options{Quality: 80}); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.thumbPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(d.thumbPath, buf.Bytes(), 0644); err != nil {
		return err
	}
	b := img.Bounds()
	d.logger.Event(diaglog.ComponentDaemon, diaglog.EventThumbnail, map[string]interface{}{
		"path":   d.thumbPath,
		"width":  b.Dx(),
		"height": b.Dy(),
	})
	return nil
}

// status builds the snapshot shared by status.json and the websocket hello
func (d *daemon) status() *ipc.StatusSnapshot {
	caps := d.ctrl.Capabilities()
	d.mu.Lock()
	lastAction, lastError := d.lastAction, d.lastError
	d.mu.Unlock()

	s := &ipc.StatusSnapshot{
		State:         string(d.ctrl.State()),
		Recording:     d.ctrl.IsRecording(),
		Position:      string(d.ctrl.Position()),
		FlashMode:     string(d.ctrl.FlashMode()),
		OutputPath:    d.ctrl.OutputPath(),
		Capabilities:  caps,
		Degradations:  caps.Degradations(),
		RecorderState: d.tracker.State(),
		LastAction:    lastAction,
		LastError:     lastError,
		MQTTConnected: d.mqtt != nil,
		ConfigFile:    d.configFile,
		Timestamp:     time.Now(),
		DaemonPID:     os.Getpid(),
		DaemonVersion: Version,
	}
	if d.hub != nil {
		s.EventClients = d.hub.Clients()
	}
	return s
}

func (d *daemon) statusChanged() {
	if err := ipc.WriteStatus(d.status()); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}
