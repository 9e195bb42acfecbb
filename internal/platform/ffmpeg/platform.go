package ffmpeg

import (
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
)

// Backend is the assembled host platform
type Backend struct {
	Session *Session
	Video   *SampleOutput
	Audio   *SampleOutput
	Photo   *PhotoOutput
}

// NewBackend creates the session and its outputs
func NewBackend(cfg Config, opts Options) *Backend {
	s := NewSession(cfg, opts)
	return &Backend{
		Session: s,
		Video:   NewSampleOutput(media.MediaVideo),
		Audio:   NewSampleOutput(media.MediaAudio),
		Photo:   NewPhotoOutput(s),
	}
}

// Platform bundles the backend with the host collaborators it does not
// provide itself. Any of auth, lib or preview may be nil.
func (b *Backend) Platform(auth platform.Authorizer, lib platform.Library, preview platform.PreviewSink, opts Options) platform.Platform {
	cfg := b.Session.cfg
	p := platform.Platform{
		Authorizer:  auth,
		Discovery:   NewDiscovery(cfg),
		Session:     b.Session,
		Writers:     NewWriterFactory(cfg, b.Session.Preset, opts),
		Thumbnailer: NewThumbnailer(cfg),
		Orientation: platform.FixedOrientation(media.DeviceLandscapeLeft),
		VideoOutput: b.Video,
		AudioOutput: b.Audio,
		PhotoOutput: func() platform.PhotoOutput { return b.Photo },
	}
	if lib != nil {
		p.Library = lib
	}
	if preview != nil {
		p.Preview = preview
	}
	return p
}
