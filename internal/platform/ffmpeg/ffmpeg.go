// Package ffmpeg implements the platform collaborators on a Linux host by
// driving ffmpeg processes: v4l2 cameras and a PulseAudio/ALSA microphone
// for capture, an mp4 muxer for the asset writer and single-frame grabs for
// thumbnails.
package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
)

// Config locates ffmpeg and the capture devices
type Config struct {
	FFmpegPath  string
	VideoFormat string // ffmpeg -f for cameras, e.g. v4l2
	BackDevice  string
	FrontDevice string
	BackFlash   bool
	FrontFlash  bool
	AudioFormat string // ffmpeg -f for the microphone, e.g. pulse or alsa
	Microphone  string

	FrameRate int
	Audio     media.AudioSettings
}

// DefaultConfig targets the first two v4l2 nodes and the default PulseAudio source
func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		VideoFormat: "v4l2",
		BackDevice:  "/dev/video0",
		FrontDevice: "/dev/video2",
		AudioFormat: "pulse",
		Microphone:  "default",
		FrameRate:   30,
		Audio:       media.DefaultAudioSettings(),
	}
}

func (c Config) ffmpeg() string {
	if c.FFmpegPath == "" {
		return "ffmpeg"
	}
	return c.FFmpegPath
}

// Version runs `ffmpeg -version` and returns the first line
func Version(cfg Config) (string, error) {
	out, err := exec.Command(cfg.ffmpeg(), "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s: %w", cfg.ffmpeg(), err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

type deviceKind int

const (
	kindCamera deviceKind = iota
	kindMicrophone
)

// Device is a camera node or microphone source
type Device struct {
	id    string
	path  string
	pos   media.Position
	flash bool
	kind  deviceKind
}

func (d *Device) ID() string               { return d.id }
func (d *Device) Position() media.Position { return d.pos }
func (d *Device) HasFlash() bool           { return d.flash }

// Path is the ffmpeg input name for the device
func (d *Device) Path() string { return d.path }

// Discovery resolves positions to the configured device nodes
type Discovery struct {
	cfg Config
}

// NewDiscovery creates a discovery over cfg
func NewDiscovery(cfg Config) *Discovery {
	return &Discovery{cfg: cfg}
}

// Camera returns the device at pos if its node exists
func (d *Discovery) Camera(pos media.Position) (platform.Device, error) {
	path, flash := d.cfg.BackDevice, d.cfg.BackFlash
	if pos == media.PositionFront {
		path, flash = d.cfg.FrontDevice, d.cfg.FrontFlash
	}
	if path == "" {
		return nil, fmt.Errorf("%s camera not configured: %w", pos, platform.ErrNoDevice)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s camera %s: %w", pos, path, platform.ErrNoDevice)
	}
	return &Device{id: string(pos) + ":" + path, path: path, pos: pos, flash: flash, kind: kindCamera}, nil
}

// Microphone returns the configured source. Sound-server sources cannot be
// probed without opening them, so only ALSA-style device paths are checked.
func (d *Discovery) Microphone() (platform.Device, error) {
	name := d.cfg.Microphone
	if name == "" {
		return nil, fmt.Errorf("microphone not configured: %w", platform.ErrNoDevice)
	}
	if strings.HasPrefix(name, "/") {
		if _, err := os.Stat(name); err != nil {
			return nil, fmt.Errorf("microphone %s: %w", name, platform.ErrNoDevice)
		}
	}
	return &Device{id: "mic:" + name, path: name, kind: kindMicrophone}, nil
}

// Options shared by the backend components
type Options struct {
	Logger *diaglog.Logger
	Log    *log.Logger
}

func (o Options) log() *log.Logger {
	if o.Log == nil {
		return log.New(io.Discard, "", 0)
	}
	return o.Log
}

// errNotRunning is returned for photo captures while the session is stopped
var errNotRunning = errors.New("capture session is not running")
