// Package camera is the capture session controller. It sequences session
// setup, encoder wiring, recording start/stop and still capture over the
// platform collaborators, and reports the lifecycle to two observers.
//
// Control operations are expected to be called serially from the main
// queue. Samples are routed on a dedicated recording queue.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
	"github.com/tiroq/fmcamera/internal/reducer"
	"github.com/tiroq/fmcamera/internal/statemachine"
)

var (
	// ErrNotConfigured is returned by operations invoked before Configure completed
	ErrNotConfigured = errors.New("camera is not configured")
	// ErrWriterUnavailable means no startable asset writer exists even after a rebuild
	ErrWriterUnavailable = errors.New("asset writer unavailable")
	// ErrFinishing means the previous recording is still being finalized
	ErrFinishing = errors.New("previous recording is still finishing")
	// ErrPhotoUnavailable means no still-photo output is attached
	ErrPhotoUnavailable = errors.New("photo output unavailable")
	// ErrNoThumbnailer means the platform cannot extract thumbnails
	ErrNoThumbnailer = errors.New("thumbnails unavailable")
	// ErrRecordingCancelled is reported when reconfiguration discards an active recording
	ErrRecordingCancelled = errors.New("recording cancelled by reconfiguration")
)

// Controller owns the capture session, the asset writer and its inputs
type Controller struct {
	cfg     Config
	p       platform.Platform
	sm      *statemachine.StateMachine
	main    platform.Queue
	rec     platform.Queue
	reducer *reducer.Reducer
	logger  *diaglog.Logger
	log     *log.Logger

	videoObs VideoObserver
	photoObs PhotoObserver

	// attached session outputs, kept across reconfiguration
	outputs map[platform.Output]bool

	mu        sync.Mutex
	writer    platform.AssetWriter
	videoIn   platform.WriterInput
	audioIn   platform.WriterInput
	cameraIn  platform.Input
	micIn     platform.Input
	photoOut  platform.PhotoOutput
	position  media.Position
	flash     media.FlashMode
	recording bool // cleared when finalize completes
	accepting bool // sample sinks attached
	anchored  bool
	report    SetupReport
	caps      Capabilities
}

// New creates an unconfigured controller. Call Configure before anything else.
func New(cfg Config, p platform.Platform, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		p:       p,
		sm:      statemachine.NewStateMachine(),
		main:    platform.Immediate{},
		rec:     platform.Immediate{},
		log:     discardLog(),
		outputs: make(map[platform.Output]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reducer == nil {
		c.reducer = reducer.New(nil)
	}
	c.reducer.SetLogger(c.logger)
	c.sm.SetLogger(c.logger)
	if c.cfg.Position == media.PositionUnspecified {
		c.cfg.Position = media.PositionBack
	}
	if c.cfg.FlashMode == "" {
		c.cfg.FlashMode = media.FlashAuto
	}
	if c.cfg.OutputPath == "" {
		c.cfg.OutputPath = DefaultOutputPath()
	}
	if c.cfg.MaxPictureFileSize <= 0 {
		c.cfg.MaxPictureFileSize = DefaultMaxPictureFileSize
	}
	c.position = c.cfg.Position
	c.flash = c.cfg.FlashMode
	return c
}

// SetVideoObserver registers the recording observer, replacing any previous one
func (c *Controller) SetVideoObserver(o VideoObserver) {
	c.mu.Lock()
	c.videoObs = o
	c.mu.Unlock()
}

// SetPhotoObserver registers the photo observer, replacing any previous one
func (c *Controller) SetPhotoObserver(o PhotoObserver) {
	c.mu.Lock()
	c.photoObs = o
	c.mu.Unlock()
}

// Config returns the configuration the next Reconfigure applies
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// State returns the lifecycle state
func (c *Controller) State() statemachine.State {
	return c.sm.Current()
}

// IsRecording is true from a successful start until finalize completes
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Position returns the active camera position
func (c *Controller) Position() media.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// FlashMode returns the flash mode applied to the next photo
func (c *Controller) FlashMode() media.FlashMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flash
}

// OutputPath is the recording file location
func (c *Controller) OutputPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.OutputPath
}

// SetupReport returns the step results of the last configuration
func (c *Controller) SetupReport() SetupReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SetupReport{Steps: append([]StepResult(nil), c.report.Steps...)}
}

// Capabilities returns what the last configuration managed to wire up
func (c *Controller) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Configure requests photo library access and, once authorized, builds the
// session on the main queue. Denied access is logged; other statuses do
// nothing.
func (c *Controller) Configure() {
	if c.p.Authorizer == nil {
		c.main.Dispatch(func() { c.configure("configure") })
		return
	}
	c.p.Authorizer.RequestAuthorization(func(status platform.AuthorizationStatus) {
		c.logger.Event(diaglog.ComponentController, diaglog.EventAuthorization, map[string]interface{}{
			"status": string(status),
		})
		switch status {
		case platform.StatusAuthorized:
			c.main.Dispatch(func() { c.configure("configure") })
		case platform.StatusDenied:
			c.log.Println("photo library access denied: should open settings to grant it")
		default:
		}
	})
}

// Reconfigure discards the encoder pipeline and configures again with the
// current Config. An active recording is cancelled and reported as
// RecordingFinished("", ErrRecordingCancelled).
func (c *Controller) Reconfigure() error {
	if !c.configured("reconfigure") {
		return ErrNotConfigured
	}
	c.configure("reconfigure")
	return nil
}

// ApplyConfig replaces the configuration and reconfigures when already
// configured. The new settings are kept for Configure otherwise.
func (c *Controller) ApplyConfig(cfg Config) error {
	c.mu.Lock()
	if cfg.OutputPath == "" {
		cfg.OutputPath = c.cfg.OutputPath
	}
	if cfg.MaxPictureFileSize <= 0 {
		cfg.MaxPictureFileSize = DefaultMaxPictureFileSize
	}
	c.cfg = cfg
	if cfg.Position != media.PositionUnspecified {
		c.position = cfg.Position
	}
	if cfg.FlashMode != "" {
		c.flash = cfg.FlashMode
	}
	c.mu.Unlock()

	if !c.sm.Configured() {
		return nil
	}
	c.configure("apply config")
	return nil
}

// configured logs a guidance message when op requires configuration
func (c *Controller) configured(op string) bool {
	if c.sm.Configured() {
		return true
	}
	c.log.Printf("camera error: configure the camera before %s (call Configure)", op)
	c.logger.Event(diaglog.ComponentController, diaglog.EventPrecondition, map[string]interface{}{
		"op":    op,
		"state": string(c.sm.Current()),
	})
	return false
}

func (c *Controller) configure(reason string) {
	if c.sm.Is(statemachine.Configuring) {
		return
	}
	// a finishing recording still reports through its finalize callback
	finishing := c.sm.Is(statemachine.Finishing)
	if err := c.sm.Transition(statemachine.Configuring, reason); err != nil {
		c.log.Printf("camera error: %v", err)
		return
	}
	c.teardown(!finishing)

	c.mu.Lock()
	cfg := c.cfg
	pos := c.position
	c.report = SetupReport{}
	c.mu.Unlock()

	s := c.p.Session
	c.step(StepSession, c.setupSession(cfg))
	if s != nil {
		s.BeginConfiguration()
	}
	c.step(StepOutputFile, prepareOutputFile(cfg.OutputPath))
	c.step(StepAssetWriter, c.setupWriter(cfg.OutputPath))
	c.step(StepWriterInputs, c.setupWriterInputs(cfg))
	c.step(StepCameraInput, c.attachCamera(pos))
	c.step(StepMicrophone, c.attachMicrophone())
	c.step(StepSampleOutput, c.attachSampleOutputs())
	c.step(StepPhotoOutput, c.attachPhotoOutput())
	c.step(StepPreview, c.attachPreview())
	if s != nil {
		s.CommitConfiguration()
	}
	c.step(StepStart, c.startSession())

	c.refreshCapabilities()
	if err := c.sm.Transition(statemachine.Ready, reason+" done"); err != nil {
		c.log.Printf("camera error: %v", err)
	}

	report := c.SetupReport()
	if !report.OK() {
		c.log.Printf("camera configured with degradations: %s", report)
	}
	c.logger.Event(diaglog.ComponentController, diaglog.EventConfigure, map[string]interface{}{
		"reason":       reason,
		"position":     string(pos),
		"preset":       string(cfg.Preset),
		"failed_steps": len(report.Failed()),
		"degradations": c.Capabilities().Degradations(),
	})
}

func (c *Controller) step(step Step, err error) {
	c.mu.Lock()
	c.report.record(step, err)
	c.mu.Unlock()
	payload := map[string]interface{}{"step": string(step), "ok": err == nil}
	if err != nil {
		payload["error"] = err.Error()
		c.log.Printf("camera setup: %s skipped: %v", step, err)
	}
	c.logger.Event(diaglog.ComponentController, diaglog.EventConfigureStep, payload)
}

// teardown drops the previous pipeline. Outputs stay attached to the session.
// With notify set, a cancelled recording is reported to the video observer.
func (c *Controller) teardown(notify bool) {
	c.detachSinks()

	c.mu.Lock()
	w := c.writer
	wasRecording := c.recording
	cameraIn, micIn := c.cameraIn, c.micIn
	c.writer, c.videoIn, c.audioIn = nil, nil, nil
	c.cameraIn, c.micIn = nil, nil
	c.recording, c.anchored = false, false
	c.mu.Unlock()

	if w != nil && w.Status() == platform.WriterWriting {
		w.CancelWriting()
	}
	if s := c.p.Session; s != nil {
		if s.Running() {
			s.Stop()
		}
		if cameraIn != nil {
			s.RemoveInput(cameraIn)
		}
		if micIn != nil {
			s.RemoveInput(micIn)
		}
	}
	if wasRecording {
		c.log.Println("camera: active recording cancelled by reconfiguration")
		c.logger.Event(diaglog.ComponentController, diaglog.EventRecordingFinished, map[string]interface{}{
			"file":  c.OutputPath(),
			"ok":    false,
			"error": ErrRecordingCancelled.Error(),
		})
		if notify {
			c.notifyFinished("", ErrRecordingCancelled)
		}
	}
}

func (c *Controller) setupSession(cfg Config) error {
	if c.p.Session == nil {
		return errors.New("no capture session")
	}
	preset := cfg.Preset
	if !preset.Valid() {
		preset = media.PresetHigh
	}
	c.p.Session.SetPreset(preset)
	return nil
}

// prepareOutputFile removes a previous recording at path
func prepareOutputFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove previous recording: %w", err)
	}
	return nil
}

func (c *Controller) setupWriter(path string) error {
	if c.p.Writers == nil {
		return errors.New("no asset writer factory")
	}
	w, err := c.p.Writers.NewWriter(path)
	if err != nil {
		return fmt.Errorf("create asset writer: %w", err)
	}
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
	return nil
}

func (c *Controller) setupWriterInputs(cfg Config) error {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		return errors.New("no asset writer")
	}

	var errs []error
	video, err := w.NewInput(media.MediaVideo, cfg.Video, cfg.Audio)
	if err != nil {
		errs = append(errs, fmt.Errorf("video input: %w", err))
		video = nil
	} else {
		video.SetRotation(media.VideoRotation(c.deviceOrientation()))
		if w.CanAddInput(video) {
			w.AddInput(video)
		} else {
			errs = append(errs, fmt.Errorf("video input: %w", platform.ErrCannotAdd))
			video = nil
		}
	}

	audio, err := w.NewInput(media.MediaAudio, cfg.Video, cfg.Audio)
	if err != nil {
		errs = append(errs, fmt.Errorf("audio input: %w", err))
		audio = nil
	} else if w.CanAddInput(audio) {
		w.AddInput(audio)
	} else {
		errs = append(errs, fmt.Errorf("audio input: %w", platform.ErrCannotAdd))
		audio = nil
	}

	c.mu.Lock()
	c.videoIn, c.audioIn = video, audio
	c.mu.Unlock()
	return errors.Join(errs...)
}

// attachCamera discovers the camera at pos and binds it into the session
func (c *Controller) attachCamera(pos media.Position) error {
	s := c.p.Session
	if s == nil || c.p.Discovery == nil {
		return errors.New("no session or device discovery")
	}
	dev, err := c.p.Discovery.Camera(pos)
	if err != nil {
		return fmt.Errorf("discover %s camera: %w", pos, err)
	}
	in, err := s.NewInput(dev)
	if err != nil {
		return fmt.Errorf("open %s camera: %w", pos, err)
	}
	if !s.CanAddInput(in) {
		return fmt.Errorf("%s camera: %w", pos, platform.ErrCannotAdd)
	}
	s.AddInput(in)
	c.mu.Lock()
	c.cameraIn = in
	c.mu.Unlock()
	return nil
}

func (c *Controller) attachMicrophone() error {
	s := c.p.Session
	if s == nil || c.p.Discovery == nil {
		return errors.New("no session or device discovery")
	}
	dev, err := c.p.Discovery.Microphone()
	if err != nil {
		return fmt.Errorf("discover microphone: %w", err)
	}
	in, err := s.NewInput(dev)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	if !s.CanAddInput(in) {
		return fmt.Errorf("microphone: %w", platform.ErrCannotAdd)
	}
	s.AddInput(in)
	c.mu.Lock()
	c.micIn = in
	c.mu.Unlock()
	return nil
}

func (c *Controller) attachSampleOutputs() error {
	var errs []error
	if c.p.VideoOutput == nil {
		errs = append(errs, errors.New("no video data output"))
	} else if err := c.addOutput(c.p.VideoOutput); err != nil {
		errs = append(errs, fmt.Errorf("video data output: %w", err))
	}
	if c.p.AudioOutput == nil {
		errs = append(errs, errors.New("no audio data output"))
	} else if err := c.addOutput(c.p.AudioOutput); err != nil {
		errs = append(errs, fmt.Errorf("audio data output: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Controller) attachPhotoOutput() error {
	c.mu.Lock()
	c.photoOut = nil
	c.mu.Unlock()
	if c.p.PhotoOutput == nil {
		return errors.New("no photo output")
	}
	out := c.p.PhotoOutput()
	if out == nil {
		return errors.New("no photo output")
	}
	if err := c.addOutput(out); err != nil {
		return err
	}
	c.mu.Lock()
	c.photoOut = out
	c.mu.Unlock()
	return nil
}

func (c *Controller) attachPreview() error {
	if c.p.Preview == nil {
		return errors.New("no preview sink")
	}
	return c.addOutput(c.p.Preview)
}

func (c *Controller) addOutput(out platform.Output) error {
	s := c.p.Session
	if s == nil {
		return errors.New("no capture session")
	}
	if c.outputs[out] {
		return nil
	}
	if !s.CanAddOutput(out) {
		return platform.ErrCannotAdd
	}
	s.AddOutput(out)
	c.outputs[out] = true
	return nil
}

func (c *Controller) startSession() error {
	s := c.p.Session
	if s == nil {
		return errors.New("no capture session")
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

func (c *Controller) refreshCapabilities() {
	c.mu.Lock()
	defer c.mu.Unlock()
	caps := Capabilities{
		Camera:     c.cameraIn != nil,
		Microphone: c.micIn != nil,
		Writer:     c.writer != nil && c.videoIn != nil,
		Preview:    c.p.Preview != nil && c.outputs[c.p.Preview],
		Photo:      c.photoOut != nil,
	}
	if c.cameraIn != nil {
		caps.Flash = c.cameraIn.Device().HasFlash()
	}
	c.caps = caps
}

func (c *Controller) deviceOrientation() media.DeviceOrientation {
	if c.p.Orientation == nil {
		return media.DeviceUnknown
	}
	return c.p.Orientation.DeviceOrientation()
}

// FlipCamera swaps the camera input for the one at pos without touching the
// recording pipeline.
func (c *Controller) FlipCamera(pos media.Position) error {
	if !c.configured("flipping camera") {
		return ErrNotConfigured
	}
	c.mu.Lock()
	old := c.cameraIn
	from := c.position
	c.cameraIn = nil
	c.mu.Unlock()

	s := c.p.Session
	if s != nil {
		s.BeginConfiguration()
		if old != nil {
			s.RemoveInput(old)
		}
	}
	err := c.attachCamera(pos)
	if s != nil {
		s.CommitConfiguration()
	}
	c.mu.Lock()
	c.position = pos
	c.report.record(StepCameraInput, err)
	c.mu.Unlock()
	c.refreshCapabilities()

	if err != nil {
		c.log.Printf("camera: flip to %s: %v", pos, err)
	}
	if c.sm.Is(statemachine.Ready) {
		_ = c.sm.Transition(statemachine.Ready, "flip camera")
	}
	c.logger.Event(diaglog.ComponentController, diaglog.EventCameraFlip, map[string]interface{}{
		"from": string(from),
		"to":   string(pos),
		"ok":   err == nil,
	})
	return err
}

// SetFlashMode changes the flash mode used by the next photo
func (c *Controller) SetFlashMode(mode media.FlashMode) error {
	if !c.configured("changing flash mode") {
		return ErrNotConfigured
	}
	c.mu.Lock()
	c.flash = mode
	c.mu.Unlock()
	if c.sm.Is(statemachine.Ready) {
		_ = c.sm.Transition(statemachine.Ready, "flash "+string(mode))
	}
	return nil
}

// Thumbnail extracts a frame from the last recording at offset
func (c *Controller) Thumbnail(ctx context.Context, offset time.Duration) (image.Image, error) {
	if c.p.Thumbnailer == nil {
		return nil, ErrNoThumbnailer
	}
	img, err := c.p.Thumbnailer.Thumbnail(ctx, c.OutputPath(), offset)
	if err != nil {
		c.log.Printf("camera: thumbnail: %v", err)
		return nil, err
	}
	return img, nil
}

func (c *Controller) notifyStarted(err error) {
	c.mu.Lock()
	o := c.videoObs
	c.mu.Unlock()
	if o == nil {
		return
	}
	c.main.Dispatch(func() { o.RecordingStarted(err) })
}

func (c *Controller) notifyFinished(path string, err error) {
	c.mu.Lock()
	o := c.videoObs
	c.mu.Unlock()
	if o == nil {
		return
	}
	c.main.Dispatch(func() { o.RecordingFinished(path, err) })
}
