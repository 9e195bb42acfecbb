// Package platform declares the native collaborators the capture controller
// delegates to: permission service, device discovery, capture session,
// sample outputs, asset writer, still capture, photo library and thumbnails.
// Backends (see platform/ffmpeg) implement these; tests use testutil fakes.
package platform

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/tiroq/fmcamera/internal/media"
)

var (
	// ErrNoDevice is returned by Discovery when no device matches
	ErrNoDevice = errors.New("no capture device available")
	// ErrCannotAdd is returned when a session rejects an input or output
	ErrCannotAdd = errors.New("session cannot add component")
)

// AuthorizationStatus is the photo-library permission state
type AuthorizationStatus string

const (
	StatusAuthorized    AuthorizationStatus = "authorized"
	StatusDenied        AuthorizationStatus = "denied"
	StatusNotDetermined AuthorizationStatus = "not-determined"
	StatusRestricted    AuthorizationStatus = "restricted"
)

// Authorizer grants access to the photo library. The callback may run on
// any goroutine.
type Authorizer interface {
	RequestAuthorization(fn func(AuthorizationStatus))
}

// Device is a discovered camera or microphone
type Device interface {
	ID() string
	Position() media.Position
	HasFlash() bool
}

// Discovery finds capture devices
type Discovery interface {
	Camera(pos media.Position) (Device, error)
	Microphone() (Device, error)
}

// Input is a device bound into a session
type Input interface {
	Device() Device
}

// Output is anything a session can feed
type Output interface{}

// Session is the running capture graph
type Session interface {
	SetPreset(p media.Preset)
	NewInput(d Device) (Input, error)
	CanAddInput(in Input) bool
	AddInput(in Input)
	RemoveInput(in Input)
	CanAddOutput(out Output) bool
	AddOutput(out Output)
	BeginConfiguration()
	CommitConfiguration()
	Start() error
	Stop()
	Running() bool
}

// SampleHandler receives samples on the queue it was registered with
type SampleHandler func(s media.Sample)

// SampleOutput delivers raw audio or video samples. Passing a nil handler
// detaches it; samples already in flight may still be delivered once.
type SampleOutput interface {
	Output
	MediaType() media.MediaType
	SetSampleHandler(h SampleHandler, q Queue)
}

// PhotoSettings is the one-shot still capture request
type PhotoSettings struct {
	Format    media.PhotoFormat
	FlashMode media.FlashMode
}

// PhotoHandler receives the encoded still in the platform's native format
type PhotoHandler func(data []byte, err error)

// PhotoOutput captures stills. Completion is always asynchronous.
type PhotoOutput interface {
	Output
	Capture(settings PhotoSettings, fn PhotoHandler)
}

// PreviewSink receives encoded preview frames while the session runs
type PreviewSink interface {
	Output
	PreviewFrame(frame []byte)
}

// WriterStatus mirrors the asset writer lifecycle
type WriterStatus int

const (
	WriterUnknown WriterStatus = iota
	WriterWriting
	WriterCompleted
	WriterFailed
	WriterCancelled
)

func (s WriterStatus) String() string {
	switch s {
	case WriterUnknown:
		return "unknown"
	case WriterWriting:
		return "writing"
	case WriterCompleted:
		return "completed"
	case WriterFailed:
		return "failed"
	case WriterCancelled:
		return "cancelled"
	}
	return "invalid"
}

// WriterInput accepts samples for one track
type WriterInput interface {
	MediaType() media.MediaType
	SetRotation(degrees int)
	ReadyForMoreMediaData() bool
	Append(s media.Sample) bool
}

// AssetWriter muxes encoded samples into a container file
type AssetWriter interface {
	Status() WriterStatus
	Err() error
	NewInput(t media.MediaType, video media.VideoSettings, audio media.AudioSettings) (WriterInput, error)
	CanAddInput(in WriterInput) bool
	AddInput(in WriterInput)
	StartWriting() error
	StartSession(pts time.Duration)
	FinishWriting(fn func(err error))
	CancelWriting()
}

// WriterFactory creates an asset writer bound to path
type WriterFactory interface {
	NewWriter(path string) (AssetWriter, error)
}

// Library persists finished photos and videos
type Library interface {
	SaveVideo(path string, fn func(ok bool, err error))
	SavePhoto(img image.Image)
}

// Thumbnailer extracts a still frame from a video file
type Thumbnailer interface {
	Thumbnail(ctx context.Context, path string, offset time.Duration) (image.Image, error)
}

// OrientationSource reports the current physical device orientation
type OrientationSource interface {
	DeviceOrientation() media.DeviceOrientation
}

// FixedOrientation is an OrientationSource for hosts without sensors
type FixedOrientation media.DeviceOrientation

// DeviceOrientation returns o
func (o FixedOrientation) DeviceOrientation() media.DeviceOrientation {
	return media.DeviceOrientation(o)
}

// Platform bundles every collaborator the controller needs. Nil members
// degrade functionality instead of failing.
type Platform struct {
	Authorizer  Authorizer
	Discovery   Discovery
	Session     Session
	Writers     WriterFactory
	Library     Library
	Thumbnailer Thumbnailer
	Orientation OrientationSource

	VideoOutput SampleOutput
	AudioOutput SampleOutput
	PhotoOutput func() PhotoOutput
	Preview     PreviewSink
}
