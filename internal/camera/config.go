package camera

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
	"github.com/tiroq/fmcamera/internal/reducer"
)

// DefaultMaxPictureFileSize is the photo byte budget when none is configured
const DefaultMaxPictureFileSize = 400000

// Config is the session configuration applied by Configure and Reconfigure
type Config struct {
	Preset    media.Preset
	Position  media.Position
	FlashMode media.FlashMode

	Video media.VideoSettings
	Audio media.AudioSettings
	// PhotoFormat overrides the still format; nil captures JPEG
	PhotoFormat *media.PhotoFormat

	// OutputPath is the single recording file, replaced on every recording
	OutputPath         string
	MaxPictureFileSize int

	SavePhotoToLibrary        bool
	SaveVideoToLibrary        bool
	SaveReducedImageToLibrary bool
	// SaveVideoAfterFinalize saves from the finalize completion instead of
	// right after the stop request
	SaveVideoAfterFinalize bool
	ForceUpOrientation     bool

	// On-screen size of the component; photos are cropped to this aspect
	ViewWidth  float64
	ViewHeight float64
}

// DefaultOutputPath is <tmp>/file.mp4
func DefaultOutputPath() string {
	return filepath.Join(os.TempDir(), "file.mp4")
}

// DefaultConfig returns high preset, back camera, auto flash, square h264
// video with mono AAC and a 400 kB photo budget.
func DefaultConfig() Config {
	return Config{
		Preset:             media.PresetHigh,
		Position:           media.PositionBack,
		FlashMode:          media.FlashAuto,
		Video:              media.DefaultVideoSettings(),
		Audio:              media.DefaultAudioSettings(),
		OutputPath:         DefaultOutputPath(),
		MaxPictureFileSize: DefaultMaxPictureFileSize,
		ViewWidth:          1,
		ViewHeight:         1,
	}
}

// Option customizes a Controller
type Option func(*Controller)

// WithLogger sets the diagnostic logger
func WithLogger(l *diaglog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithLog sets the human-readable log used for guidance and errors
func WithLog(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMainQueue sets where configuration runs and observers are notified
func WithMainQueue(q platform.Queue) Option {
	return func(c *Controller) {
		if q != nil {
			c.main = q
		}
	}
}

// WithRecordingQueue sets where samples are delivered while recording
func WithRecordingQueue(q platform.Queue) Option {
	return func(c *Controller) {
		if q != nil {
			c.rec = q
		}
	}
}

// WithReducer replaces the default JPEG reducer
func WithReducer(r *reducer.Reducer) Option {
	return func(c *Controller) {
		if r != nil {
			c.reducer = r
		}
	}
}

func discardLog() *log.Logger {
	return log.New(io.Discard, "", 0)
}
