package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
)

// FakePlatform wires in-memory fakes for every platform collaborator and
// records what the controller does with them.
type FakePlatform struct {
	Auth        *FakeAuthorizer
	Discovery   *FakeDiscovery
	Session     *FakeSession
	Writers     *FakeWriterFactory
	Library     *FakeLibrary
	Thumbnailer *FakeThumbnailer
	Orientation platform.FixedOrientation
	Video       *FakeSampleOutput
	Audio       *FakeSampleOutput
	Photo       *FakePhotoOutput
	Preview     *FakePreview
}

// NewFakePlatform returns a fully equipped platform: a back camera with
// flash, a front camera without, a microphone, and a photo output that
// returns a 64x48 JPEG.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Auth: &FakeAuthorizer{Status: platform.StatusAuthorized},
		Discovery: &FakeDiscovery{
			Cameras: map[media.Position]*FakeDevice{
				media.PositionBack:  {DeviceID: "back-cam", Pos: media.PositionBack, Flash: true},
				media.PositionFront: {DeviceID: "front-cam", Pos: media.PositionFront},
			},
			Mic: &FakeDevice{DeviceID: "mic"},
		},
		Session:     &FakeSession{},
		Writers:     &FakeWriterFactory{},
		Library:     &FakeLibrary{},
		Thumbnailer: &FakeThumbnailer{Image: image.NewRGBA(image.Rect(0, 0, 32, 32))},
		Orientation: platform.FixedOrientation(media.DevicePortrait),
		Video:       &FakeSampleOutput{Type: media.MediaVideo},
		Audio:       &FakeSampleOutput{Type: media.MediaAudio},
		Photo:       &FakePhotoOutput{Data: JPEGFixture(64, 48)},
		Preview:     &FakePreview{},
	}
}

// Platform bundles the fakes for the controller constructor
func (f *FakePlatform) Platform() platform.Platform {
	p := platform.Platform{
		Authorizer:  f.Auth,
		Discovery:   f.Discovery,
		Session:     f.Session,
		Writers:     f.Writers,
		Library:     f.Library,
		Thumbnailer: f.Thumbnailer,
		Orientation: f.Orientation,
		VideoOutput: f.Video,
		AudioOutput: f.Audio,
		Preview:     f.Preview,
	}
	if f.Photo != nil {
		photo := f.Photo
		p.PhotoOutput = func() platform.PhotoOutput { return photo }
	}
	return p
}

// JPEGFixture encodes a w x h image whose left half is red and right half blue
func JPEGFixture(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{255, 0, 0, 255}
			if x >= w/2 {
				c = color.RGBA{0, 0, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

// FakeAuthorizer answers with Status synchronously
type FakeAuthorizer struct {
	Status platform.AuthorizationStatus

	mu    sync.Mutex
	calls int
}

func (a *FakeAuthorizer) RequestAuthorization(fn func(platform.AuthorizationStatus)) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	fn(a.Status)
}

// Calls returns how many times authorization was requested
func (a *FakeAuthorizer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// FakeDevice is a static capture device
type FakeDevice struct {
	DeviceID string
	Pos      media.Position
	Flash    bool
}

func (d *FakeDevice) ID() string               { return d.DeviceID }
func (d *FakeDevice) Position() media.Position { return d.Pos }
func (d *FakeDevice) HasFlash() bool           { return d.Flash }

// FakeDiscovery returns devices from its maps
type FakeDiscovery struct {
	Cameras map[media.Position]*FakeDevice
	Mic     *FakeDevice
}

func (d *FakeDiscovery) Camera(pos media.Position) (platform.Device, error) {
	if dev, ok := d.Cameras[pos]; ok && dev != nil {
		return dev, nil
	}
	return nil, platform.ErrNoDevice
}

func (d *FakeDiscovery) Microphone() (platform.Device, error) {
	if d.Mic == nil {
		return nil, platform.ErrNoDevice
	}
	return d.Mic, nil
}

// FakeInput binds a device
type FakeInput struct {
	Dev platform.Device
}

func (i *FakeInput) Device() platform.Device { return i.Dev }

// FakeSession records inputs, outputs and lifecycle calls
type FakeSession struct {
	RejectInputs  bool
	RejectOutputs bool
	StartErr      error

	mu      sync.Mutex
	preset  media.Preset
	inputs  []platform.Input
	outputs []platform.Output
	running bool
	starts  int
	stops   int
	removed int
	ops     []string
}

func (s *FakeSession) record(op string) {
	s.ops = append(s.ops, op)
}

func (s *FakeSession) SetPreset(p media.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preset = p
	s.record("preset:" + string(p))
}

func (s *FakeSession) NewInput(d platform.Device) (platform.Input, error) {
	return &FakeInput{Dev: d}, nil
}

func (s *FakeSession) CanAddInput(platform.Input) bool { return !s.RejectInputs }

func (s *FakeSession) AddInput(in platform.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
	s.record("add-input:" + in.Device().ID())
}

func (s *FakeSession) RemoveInput(in platform.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.inputs {
		if cur == in {
			s.inputs = append(s.inputs[:i], s.inputs[i+1:]...)
			break
		}
	}
	s.removed++
	s.record("remove-input:" + in.Device().ID())
}

func (s *FakeSession) CanAddOutput(platform.Output) bool { return !s.RejectOutputs }

func (s *FakeSession) AddOutput(out platform.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, out)
	s.record("add-output")
}

func (s *FakeSession) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("begin")
}

func (s *FakeSession) CommitConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("commit")
}

func (s *FakeSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.record("start")
	if s.StartErr != nil {
		return s.StartErr
	}
	s.running = true
	return nil
}

func (s *FakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
	s.record("stop")
}

func (s *FakeSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Preset returns the last preset set
func (s *FakeSession) Preset() media.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

// InputIDs returns the device IDs of the attached inputs
func (s *FakeSession) InputIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inputs))
	for _, in := range s.inputs {
		ids = append(ids, in.Device().ID())
	}
	return ids
}

// Outputs returns the attached outputs
func (s *FakeSession) Outputs() []platform.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Output(nil), s.outputs...)
}

// Ops returns every recorded call in order
func (s *FakeSession) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// Starts returns how many times Start was called
func (s *FakeSession) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Removed returns how many inputs were removed
func (s *FakeSession) Removed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

// FakeSampleOutput hands samples to whichever handler is attached
type FakeSampleOutput struct {
	Type media.MediaType

	mu      sync.Mutex
	handler platform.SampleHandler
	queue   platform.Queue
	sets    int
}

func (o *FakeSampleOutput) MediaType() media.MediaType { return o.Type }

func (o *FakeSampleOutput) SetSampleHandler(h platform.SampleHandler, q platform.Queue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler, o.queue = h, q
	o.sets++
}

// Attached reports whether a handler is set
func (o *FakeSampleOutput) Attached() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handler != nil
}

// Emit delivers a sample the way the platform would. It reports whether a
// handler received it.
func (o *FakeSampleOutput) Emit(pts time.Duration, data []byte) bool {
	o.mu.Lock()
	h, q := o.handler, o.queue
	o.mu.Unlock()
	if h == nil {
		return false
	}
	s := media.Sample{Type: o.Type, PTS: pts, Data: data}
	if q == nil {
		h(s)
		return true
	}
	q.Dispatch(func() { h(s) })
	return true
}

// Handler returns the attached handler, for simulating in-flight samples
func (o *FakeSampleOutput) Handler() platform.SampleHandler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handler
}

// FakePhotoOutput completes every capture with Data and Err
type FakePhotoOutput struct {
	Data []byte
	Err  error

	mu       sync.Mutex
	requests []platform.PhotoSettings
}

func (p *FakePhotoOutput) Capture(settings platform.PhotoSettings, fn platform.PhotoHandler) {
	p.mu.Lock()
	p.requests = append(p.requests, settings)
	data, err := p.Data, p.Err
	p.mu.Unlock()
	fn(data, err)
}

// Requests returns the settings of every capture so far
func (p *FakePhotoOutput) Requests() []platform.PhotoSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.PhotoSettings(nil), p.requests...)
}

// FakePreview counts preview frames
type FakePreview struct {
	mu     sync.Mutex
	frames int
}

func (p *FakePreview) PreviewFrame([]byte) {
	p.mu.Lock()
	p.frames++
	p.mu.Unlock()
}

// Frames returns how many frames were shown
func (p *FakePreview) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// FakeWriterInput records appended samples
type FakeWriterInput struct {
	Type media.MediaType

	mu         sync.Mutex
	notReady   bool
	failAppend bool
	rotation   int
	appended   []media.Sample
}

func (i *FakeWriterInput) MediaType() media.MediaType { return i.Type }

func (i *FakeWriterInput) SetRotation(degrees int) {
	i.mu.Lock()
	i.rotation = degrees
	i.mu.Unlock()
}

func (i *FakeWriterInput) ReadyForMoreMediaData() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return !i.notReady
}

func (i *FakeWriterInput) Append(s media.Sample) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failAppend {
		return false
	}
	i.appended = append(i.appended, s)
	return true
}

// SetReady toggles ReadyForMoreMediaData
func (i *FakeWriterInput) SetReady(ready bool) {
	i.mu.Lock()
	i.notReady = !ready
	i.mu.Unlock()
}

// SetFailAppend makes Append return false
func (i *FakeWriterInput) SetFailAppend(fail bool) {
	i.mu.Lock()
	i.failAppend = fail
	i.mu.Unlock()
}

// Rotation returns the applied rotation in degrees
func (i *FakeWriterInput) Rotation() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rotation
}

// Appended returns the accepted samples
func (i *FakeWriterInput) Appended() []media.Sample {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]media.Sample(nil), i.appended...)
}

// FakeWriter is an in-memory asset writer
type FakeWriter struct {
	Path string
	// StartErr fails StartWriting
	StartErr error
	// HoldFinish keeps the finalize callback until Complete is called
	HoldFinish bool
	FinishErr  error

	mu       sync.Mutex
	status   platform.WriterStatus
	inputs   []*FakeWriterInput
	sessions []time.Duration
	finishes int
	pending  func(error)
	cancels  int
}

func (w *FakeWriter) Status() platform.WriterStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// SetStatus forces the writer status
func (w *FakeWriter) SetStatus(s platform.WriterStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

func (w *FakeWriter) Err() error { return w.FinishErr }

func (w *FakeWriter) NewInput(t media.MediaType, _ media.VideoSettings, _ media.AudioSettings) (platform.WriterInput, error) {
	return &FakeWriterInput{Type: t}, nil
}

func (w *FakeWriter) CanAddInput(platform.WriterInput) bool { return true }

func (w *FakeWriter) AddInput(in platform.WriterInput) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs = append(w.inputs, in.(*FakeWriterInput))
}

func (w *FakeWriter) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.StartErr != nil {
		w.status = platform.WriterFailed
		return w.StartErr
	}
	w.status = platform.WriterWriting
	return nil
}

func (w *FakeWriter) StartSession(pts time.Duration) {
	w.mu.Lock()
	w.sessions = append(w.sessions, pts)
	w.mu.Unlock()
}

func (w *FakeWriter) FinishWriting(fn func(error)) {
	w.mu.Lock()
	w.finishes++
	if w.HoldFinish {
		w.pending = fn
		w.mu.Unlock()
		return
	}
	err := w.finishLocked()
	w.mu.Unlock()
	fn(err)
}

func (w *FakeWriter) finishLocked() error {
	if w.FinishErr != nil {
		w.status = platform.WriterFailed
		return w.FinishErr
	}
	w.status = platform.WriterCompleted
	return nil
}

// Complete releases a held finalize callback
func (w *FakeWriter) Complete() {
	w.mu.Lock()
	fn := w.pending
	w.pending = nil
	err := w.finishLocked()
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (w *FakeWriter) CancelWriting() {
	w.mu.Lock()
	w.cancels++
	w.status = platform.WriterCancelled
	w.mu.Unlock()
}

// Input returns the attached input of type t, or nil
func (w *FakeWriter) Input(t media.MediaType) *FakeWriterInput {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, in := range w.inputs {
		if in.Type == t {
			return in
		}
	}
	return nil
}

// Sessions returns every StartSession timestamp
func (w *FakeWriter) Sessions() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.sessions...)
}

// Finishes returns how many times FinishWriting was called
func (w *FakeWriter) Finishes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishes
}

// Cancels returns how many times CancelWriting was called
func (w *FakeWriter) Cancels() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancels
}

// FakeWriterFactory creates FakeWriters. Tune hands each new writer to the
// test before it is returned.
type FakeWriterFactory struct {
	Err  error
	Tune func(w *FakeWriter)

	mu      sync.Mutex
	calls   int
	writers []*FakeWriter
}

func (f *FakeWriterFactory) NewWriter(path string) (platform.AssetWriter, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	w := &FakeWriter{Path: path}
	if f.Tune != nil {
		f.Tune(w)
	}
	f.mu.Lock()
	f.writers = append(f.writers, w)
	f.mu.Unlock()
	return w, nil
}

// Calls returns how many writers were requested, including failed requests
func (f *FakeWriterFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Writers returns every writer created, oldest first
func (f *FakeWriterFactory) Writers() []*FakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeWriter(nil), f.writers...)
}

// Last returns the newest writer, or nil
func (f *FakeWriterFactory) Last() *FakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writers) == 0 {
		return nil
	}
	return f.writers[len(f.writers)-1]
}

// FakeLibrary records saved assets and completes saves synchronously
type FakeLibrary struct {
	VideoErr error

	mu     sync.Mutex
	photos []image.Image
	videos []string
}

func (l *FakeLibrary) SaveVideo(path string, fn func(ok bool, err error)) {
	l.mu.Lock()
	l.videos = append(l.videos, path)
	err := l.VideoErr
	l.mu.Unlock()
	if fn != nil {
		fn(err == nil, err)
	}
}

func (l *FakeLibrary) SavePhoto(img image.Image) {
	l.mu.Lock()
	l.photos = append(l.photos, img)
	l.mu.Unlock()
}

// Photos returns the saved photos
func (l *FakeLibrary) Photos() []image.Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]image.Image(nil), l.photos...)
}

// Videos returns the saved video paths
func (l *FakeLibrary) Videos() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.videos...)
}

// FakeThumbnailer returns Image or Err
type FakeThumbnailer struct {
	Image image.Image
	Err   error

	mu    sync.Mutex
	paths []string
}

func (f *FakeThumbnailer) Thumbnail(_ context.Context, path string, _ time.Duration) (image.Image, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Image, nil
}

// Paths returns the files thumbnails were requested for
func (f *FakeThumbnailer) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}
