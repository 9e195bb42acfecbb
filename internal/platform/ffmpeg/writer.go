package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
)

// inputBacklog is how many samples an input buffers before it reports not ready
const inputBacklog = 64

// WriterFactory creates ffmpeg-backed asset writers
type WriterFactory struct {
	cfg    Config
	preset func() media.Preset
	opts   Options
}

// NewWriterFactory creates writers encoding at the preset reported by preset
func NewWriterFactory(cfg Config, preset func() media.Preset, opts Options) *WriterFactory {
	if preset == nil {
		preset = func() media.Preset { return media.PresetHigh }
	}
	return &WriterFactory{cfg: cfg, preset: preset, opts: opts}
}

func (f *WriterFactory) NewWriter(path string) (platform.AssetWriter, error) {
	if path == "" {
		return nil, errors.New("empty output path")
	}
	return &Writer{
		cfg:    f.cfg,
		path:   path,
		preset: f.preset(),
		logger: f.opts.Logger,
		log:    f.opts.log(),
	}, nil
}

// Writer pipes MJPEG video into ffmpeg's stdin and PCM audio into fd 3,
// producing an mp4 at path.
type Writer struct {
	cfg    Config
	path   string
	preset media.Preset
	logger *diaglog.Logger
	log    *log.Logger

	mu       sync.Mutex
	status   platform.WriterStatus
	err      error
	closing  bool
	inputs   []*WriterInput
	cmd      *exec.Cmd
	stderr   bytes.Buffer
	pumps    sync.WaitGroup
	anchor   time.Duration
	anchored bool
	early    int // samples discarded for predating the anchor
}

// Path returns the output file
func (w *Writer) Path() string { return w.path }

func (w *Writer) Status() platform.WriterStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) NewInput(t media.MediaType, video media.VideoSettings, audio media.AudioSettings) (platform.WriterInput, error) {
	if t == media.MediaVideo && (video.Width <= 0 || video.Height <= 0) {
		return nil, fmt.Errorf("invalid video size %dx%d", video.Width, video.Height)
	}
	if t == media.MediaAudio && (audio.Channels <= 0 || audio.SampleRate <= 0) {
		return nil, fmt.Errorf("invalid audio format %d ch @ %d Hz", audio.Channels, audio.SampleRate)
	}
	return &WriterInput{
		w:     w,
		t:     t,
		video: video,
		audio: audio,
		ch:    make(chan media.Sample, inputBacklog),
	}, nil
}

// CanAddInput accepts one input per media type before writing starts
func (w *Writer) CanAddInput(in platform.WriterInput) bool {
	wi, ok := in.(*WriterInput)
	if !ok || wi.w != w {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != platform.WriterUnknown {
		return false
	}
	for _, cur := range w.inputs {
		if cur.t == wi.t {
			return false
		}
	}
	return true
}

func (w *Writer) AddInput(in platform.WriterInput) {
	w.mu.Lock()
	w.inputs = append(w.inputs, in.(*WriterInput))
	w.mu.Unlock()
}

func (w *Writer) input(t media.MediaType) *WriterInput {
	for _, in := range w.inputs {
		if in.t == t {
			return in
		}
	}
	return nil
}

// args builds the muxer command line for the attached inputs
func (w *Writer) args() ([]string, error) {
	video := w.input(media.MediaVideo)
	if video == nil {
		return nil, errors.New("no video input")
	}
	var audio *media.AudioSettings
	if a := w.input(media.MediaAudio); a != nil {
		settings := a.audio
		audio = &settings
	}
	return writerArgs(w.path, video.video, w.preset, video.Rotation(), audio), nil
}

// StartWriting launches the muxer. It only succeeds once per writer.
func (w *Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != platform.WriterUnknown {
		return fmt.Errorf("writer is %s", w.status)
	}

	args, err := w.args()
	if err != nil {
		return w.failLocked(err)
	}
	cmd := exec.Command(w.cfg.ffmpeg(), args...)
	cmd.Stderr = &w.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return w.failLocked(err)
	}
	var audioR, audioW *os.File
	audio := w.input(media.MediaAudio)
	if audio != nil {
		audioR, audioW, err = os.Pipe()
		if err != nil {
			return w.failLocked(err)
		}
		cmd.ExtraFiles = []*os.File{audioR}
	}
	if err := cmd.Start(); err != nil {
		if audioR != nil {
			audioR.Close()
			audioW.Close()
		}
		return w.failLocked(fmt.Errorf("start muxer: %w", err))
	}
	if audioR != nil {
		// the child holds its own copy
		audioR.Close()
	}
	w.cmd = cmd
	w.status = platform.WriterWriting
	w.logger.Event(diaglog.ComponentWriter, diaglog.EventProcessStart, map[string]interface{}{
		"file": w.path,
		"pid":  cmd.Process.Pid,
		"args": strings.Join(args, " "),
	})

	w.pump(w.input(media.MediaVideo), stdin)
	if audio != nil {
		w.pump(audio, audioW)
	}
	return nil
}

func (w *Writer) failLocked(err error) error {
	w.status = platform.WriterFailed
	w.err = err
	return err
}

// pump drains in into dst until the input channel closes
func (w *Writer) pump(in *WriterInput, dst io.WriteCloser) {
	w.pumps.Add(1)
	go func() {
		defer w.pumps.Done()
		defer dst.Close()
		broken := false
		for s := range in.ch {
			if broken {
				continue
			}
			if _, err := dst.Write(s.Data); err != nil {
				broken = true
				w.mu.Lock()
				if w.err == nil {
					w.err = fmt.Errorf("write %s track: %w", in.t, err)
				}
				w.mu.Unlock()
			}
		}
	}()
}

// StartSession anchors the timeline at pts. Later samples stamped before
// the anchor are discarded; the rest are muxed at the configured frame rate.
func (w *Writer) StartSession(pts time.Duration) {
	w.mu.Lock()
	w.anchor = pts
	w.anchored = true
	w.mu.Unlock()
}

// Discarded returns how many samples predated the anchor
func (w *Writer) Discarded() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.early
}

// closeInputsLocked stops accepting samples
func (w *Writer) closeInputsLocked() {
	if w.closing {
		return
	}
	w.closing = true
	for _, in := range w.inputs {
		close(in.ch)
	}
}

// FinishWriting drains the inputs and waits for the muxer in the
// background. fn runs on that goroutine.
func (w *Writer) FinishWriting(fn func(err error)) {
	w.mu.Lock()
	if w.status != platform.WriterWriting {
		err := fmt.Errorf("cannot finish: writer is %s", w.status)
		w.mu.Unlock()
		go fn(err)
		return
	}
	w.closeInputsLocked()
	cmd := w.cmd
	w.mu.Unlock()

	go func() {
		w.pumps.Wait()
		waitErr := cmd.Wait()

		w.mu.Lock()
		if w.status == platform.WriterCancelled {
			w.mu.Unlock()
			fn(errors.New("writing was cancelled"))
			return
		}
		err := w.err
		if waitErr != nil {
			err = fmt.Errorf("muxer: %w: %s", waitErr, strings.TrimSpace(w.stderr.String()))
		}
		if err != nil {
			w.status = platform.WriterFailed
			w.err = err
		} else {
			w.status = platform.WriterCompleted
		}
		w.mu.Unlock()

		w.logger.Event(diaglog.ComponentWriter, diaglog.EventProcessExit, map[string]interface{}{
			"file": w.path,
			"ok":   err == nil,
		})
		fn(err)
	}()
}

// CancelWriting kills the muxer and removes the partial file
func (w *Writer) CancelWriting() {
	w.mu.Lock()
	if w.status != platform.WriterWriting {
		w.mu.Unlock()
		return
	}
	w.status = platform.WriterCancelled
	w.closeInputsLocked()
	cmd := w.cmd
	w.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	go func() {
		w.pumps.Wait()
		_ = cmd.Wait()
		if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.log.Printf("writer: remove cancelled recording: %v", err)
		}
	}()
}

// WriterInput buffers the samples of one track
type WriterInput struct {
	w     *Writer
	t     media.MediaType
	video media.VideoSettings
	audio media.AudioSettings
	ch    chan media.Sample

	rmu      sync.Mutex
	rotation int
}

func (i *WriterInput) MediaType() media.MediaType { return i.t }

func (i *WriterInput) SetRotation(degrees int) {
	i.rmu.Lock()
	i.rotation = degrees
	i.rmu.Unlock()
}

// Rotation returns the rotation written into the track metadata
func (i *WriterInput) Rotation() int {
	i.rmu.Lock()
	defer i.rmu.Unlock()
	return i.rotation
}

// ReadyForMoreMediaData is false once the backlog is full or the writer
// stopped accepting samples
func (i *WriterInput) ReadyForMoreMediaData() bool {
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	if i.w.status != platform.WriterWriting || i.w.closing {
		return false
	}
	return len(i.ch) < cap(i.ch)
}

// Append enqueues s without blocking. A sample stamped before the session
// anchor is accepted and discarded.
func (i *WriterInput) Append(s media.Sample) bool {
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	if i.w.status != platform.WriterWriting || i.w.closing {
		return false
	}
	if i.w.anchored && s.PTS < i.w.anchor {
		i.w.early++
		return true
	}
	select {
	case i.ch <- s:
		return true
	default:
		return false
	}
}
