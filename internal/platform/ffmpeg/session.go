package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
)

// photoTimeout bounds how long a capture waits for the next camera frame
const photoTimeout = 5 * time.Second

// Input binds a Device into the session
type Input struct {
	dev *Device
}

func (i *Input) Device() platform.Device { return i.dev }

// Session runs one capture process per attached input. Video frames go to
// video sample outputs, preview sinks and pending photo captures; PCM
// chunks go to audio sample outputs.
type Session struct {
	cfg    Config
	logger *diaglog.Logger
	log    *log.Logger

	mu       sync.Mutex
	preset   media.Preset
	inputs   []*Input
	outputs  []platform.Output
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	epoch    time.Time
	latest   []byte
	waiters  []chan []byte
	inConfig bool
}

// NewSession creates a stopped session
func NewSession(cfg Config, opts Options) *Session {
	return &Session{
		cfg:    cfg,
		logger: opts.Logger,
		log:    opts.log(),
		preset: media.PresetHigh,
	}
}

func (s *Session) SetPreset(p media.Preset) {
	s.mu.Lock()
	s.preset = p
	s.mu.Unlock()
}

// Preset returns the capture preset
func (s *Session) Preset() media.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

func (s *Session) NewInput(d platform.Device) (platform.Input, error) {
	dev, ok := d.(*Device)
	if !ok {
		return nil, fmt.Errorf("device %s does not belong to the ffmpeg backend", d.ID())
	}
	return &Input{dev: dev}, nil
}

// CanAddInput accepts one camera and one microphone
func (s *Session) CanAddInput(in platform.Input) bool {
	i, ok := in.(*Input)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.inputs {
		if cur.dev.kind == i.dev.kind {
			return false
		}
	}
	return true
}

// AddInput attaches in. A running session restarts its processes unless
// the change is inside a Begin/Commit block.
func (s *Session) AddInput(in platform.Input) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in.(*Input))
	restart := s.running && !s.inConfig
	s.mu.Unlock()
	if restart {
		s.restart()
	}
}

func (s *Session) RemoveInput(in platform.Input) {
	s.mu.Lock()
	for i, cur := range s.inputs {
		if platform.Input(cur) == in {
			s.inputs = append(s.inputs[:i], s.inputs[i+1:]...)
			break
		}
	}
	restart := s.running && !s.inConfig
	s.mu.Unlock()
	if restart {
		s.restart()
	}
}

func (s *Session) CanAddOutput(out platform.Output) bool {
	switch out.(type) {
	case *SampleOutput, *PhotoOutput, platform.PreviewSink:
		return true
	}
	return false
}

func (s *Session) AddOutput(out platform.Output) {
	s.mu.Lock()
	s.outputs = append(s.outputs, out)
	s.mu.Unlock()
}

func (s *Session) BeginConfiguration() {
	s.mu.Lock()
	s.inConfig = true
	s.mu.Unlock()
}

// CommitConfiguration applies input changes made since BeginConfiguration
func (s *Session) CommitConfiguration() {
	s.mu.Lock()
	s.inConfig = false
	running := s.running
	s.mu.Unlock()
	if running {
		s.restart()
	}
}

// Start spawns a capture process for every input
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	return s.startLocked(time.Now())
}

// startLocked spawns the capture processes. Sample timestamps count from
// epoch.
func (s *Session) startLocked(epoch time.Time) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.epoch = epoch
	for _, in := range s.inputs {
		if err := s.spawnLocked(ctx, in.dev); err != nil {
			cancel()
			s.mu.Unlock()
			s.wg.Wait()
			s.mu.Lock()
			return err
		}
	}
	s.cancel = cancel
	s.running = true
	return nil
}

func (s *Session) spawnLocked(ctx context.Context, dev *Device) error {
	var args []string
	if dev.kind == kindCamera {
		args = cameraArgs(s.cfg, dev.path, s.preset, s.cfg.FrameRate)
	} else {
		args = microphoneArgs(s.cfg, dev.path, s.cfg.Audio)
	}
	cmd := exec.CommandContext(ctx, s.cfg.ffmpeg(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture %s: %w", dev.id, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture %s: %w", dev.id, err)
	}
	s.logger.Event(diaglog.ComponentSession, diaglog.EventProcessStart, map[string]interface{}{
		"device": dev.id,
		"pid":    cmd.Process.Pid,
	})

	epoch := s.epoch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if dev.kind == kindCamera {
			s.readFrames(stdout, epoch)
		} else {
			s.readPCM(stdout, epoch)
		}
		err := cmd.Wait()
		if ctx.Err() == nil && err != nil {
			s.log.Printf("capture %s exited: %v", dev.id, err)
		}
		s.logger.Event(diaglog.ComponentSession, diaglog.EventProcessExit, map[string]interface{}{
			"device":    dev.id,
			"cancelled": ctx.Err() != nil,
		})
	}()
	return nil
}

func (s *Session) readFrames(r io.Reader, epoch time.Time) {
	sc := newFrameScanner(r)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		s.deliverFrame(frame, time.Since(epoch))
	}
	if err := sc.Err(); err != nil {
		s.log.Printf("capture: read video frames: %v", err)
	}
}

func (s *Session) readPCM(r io.Reader, epoch time.Time) {
	buf := make([]byte, audioChunkSize(s.cfg.Audio))
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		chunk := append([]byte(nil), buf...)
		s.deliver(media.Sample{Type: media.MediaAudio, PTS: time.Since(epoch), Data: chunk})
	}
}

func (s *Session) deliverFrame(frame []byte, pts time.Duration) {
	s.mu.Lock()
	s.latest = frame
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- frame
	}
	s.deliver(media.Sample{Type: media.MediaVideo, PTS: pts, Data: frame})
}

func (s *Session) deliver(sample media.Sample) {
	s.mu.Lock()
	outputs := append([]platform.Output(nil), s.outputs...)
	s.mu.Unlock()

	for _, out := range outputs {
		switch o := out.(type) {
		case *SampleOutput:
			if o.MediaType() == sample.Type {
				o.deliver(sample)
			}
		case platform.PreviewSink:
			if sample.Type == media.MediaVideo {
				o.PreviewFrame(sample.Data)
			}
		}
	}
}

// nextFrame registers for the next video frame
func (s *Session) nextFrame() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, errNotRunning
	}
	ch := make(chan []byte, 1)
	s.waiters = append(s.waiters, ch)
	return ch, nil
}

// LatestFrame returns the most recent camera frame, or nil
func (s *Session) LatestFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Stop kills the capture processes and waits for their readers
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// restart respawns the capture processes. The epoch is kept so sample
// timestamps stay monotonic across an input change.
func (s *Session) restart() {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	if err := s.startLocked(epoch); err != nil {
		s.log.Printf("capture: restart session: %v", err)
	}
}

// Epoch returns the time sample timestamps count from
func (s *Session) Epoch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SampleOutput hands samples of one media type to the attached handler
type SampleOutput struct {
	t media.MediaType

	mu      sync.Mutex
	handler platform.SampleHandler
	queue   platform.Queue
}

// NewSampleOutput creates a detached output for t
func NewSampleOutput(t media.MediaType) *SampleOutput {
	return &SampleOutput{t: t}
}

func (o *SampleOutput) MediaType() media.MediaType { return o.t }

func (o *SampleOutput) SetSampleHandler(h platform.SampleHandler, q platform.Queue) {
	o.mu.Lock()
	o.handler, o.queue = h, q
	o.mu.Unlock()
}

func (o *SampleOutput) deliver(sample media.Sample) {
	o.mu.Lock()
	h, q := o.handler, o.queue
	o.mu.Unlock()
	if h == nil {
		return
	}
	if q == nil {
		h(sample)
		return
	}
	q.Dispatch(func() { h(sample) })
}

// PhotoOutput captures the next camera frame of a session. The host has no
// flash hardware; the flash mode is ignored.
type PhotoOutput struct {
	session *Session
}

// NewPhotoOutput creates a photo output reading from s
func NewPhotoOutput(s *Session) *PhotoOutput {
	return &PhotoOutput{session: s}
}

// Capture completes asynchronously with the next JPEG frame
func (p *PhotoOutput) Capture(settings platform.PhotoSettings, fn platform.PhotoHandler) {
	ch, err := p.session.nextFrame()
	go func() {
		if err != nil {
			fn(nil, err)
			return
		}
		select {
		case frame := <-ch:
			fn(frame, nil)
		case <-time.After(photoTimeout):
			fn(nil, fmt.Errorf("no camera frame within %s", photoTimeout))
		}
	}()
}
