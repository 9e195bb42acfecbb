// Package media holds the value types shared by the capture controller, the
// platform backends and the photo pipeline.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Position identifies which physical camera is used
type Position string

const (
	PositionUnspecified Position = ""
	PositionBack        Position = "back"
	PositionFront       Position = "front"
)

// ParsePosition accepts "back" or "front" (case-insensitive)
func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case PositionBack:
		return PositionBack, nil
	case PositionFront:
		return PositionFront, nil
	}
	return PositionUnspecified, fmt.Errorf("unknown camera position %q", s)
}

// Opposite returns the other camera. Unspecified flips to front.
func (p Position) Opposite() Position {
	if p == PositionFront {
		return PositionBack
	}
	return PositionFront
}

// FlashMode is applied to still captures when the device has flash hardware
type FlashMode string

const (
	FlashOff  FlashMode = "off"
	FlashOn   FlashMode = "on"
	FlashAuto FlashMode = "auto"
)

// ParseFlashMode accepts "off", "on" or "auto"
func ParseFlashMode(s string) (FlashMode, error) {
	switch FlashMode(strings.ToLower(strings.TrimSpace(s))) {
	case FlashOff:
		return FlashOff, nil
	case FlashOn:
		return FlashOn, nil
	case FlashAuto:
		return FlashAuto, nil
	}
	return "", fmt.Errorf("unknown flash mode %q", s)
}

// Preset is a named capture-quality tier
type Preset string

const (
	PresetLow    Preset = "low"
	PresetMedium Preset = "medium"
	PresetHigh   Preset = "high"
	PresetPhoto  Preset = "photo"
)

// PresetSize is the capture resolution and bitrate a preset implies
type PresetSize struct {
	Width   int
	Height  int
	Bitrate int // kbit/s
}

var presetSizes = map[Preset]PresetSize{
	PresetLow:    {Width: 640, Height: 480, Bitrate: 800},
	PresetMedium: {Width: 1280, Height: 720, Bitrate: 2500},
	PresetHigh:   {Width: 1920, Height: 1080, Bitrate: 6000},
	PresetPhoto:  {Width: 1920, Height: 1080, Bitrate: 0},
}

// Size returns the capture defaults for the preset. Unknown presets map to high.
func (p Preset) Size() PresetSize {
	if s, ok := presetSizes[p]; ok {
		return s
	}
	return presetSizes[PresetHigh]
}

// Valid reports whether p is a known preset
func (p Preset) Valid() bool {
	_, ok := presetSizes[p]
	return ok
}

// MediaType distinguishes the two sample streams
type MediaType int

const (
	MediaVideo MediaType = iota
	MediaAudio
)

func (m MediaType) String() string {
	if m == MediaAudio {
		return "audio"
	}
	return "video"
}

// Sample is one timestamped chunk of media delivered by the capture pipeline
type Sample struct {
	Type MediaType
	PTS  time.Duration // presentation timestamp on the session clock
	Data []byte
}

// VideoSettings configures the video encoder input
type VideoSettings struct {
	Codec       string `mapstructure:"codec" json:"codec" diff:"codec"`
	Width       int    `mapstructure:"width" json:"width" diff:"width"`
	Height      int    `mapstructure:"height" json:"height" diff:"height"`
	ScalingMode string `mapstructure:"scaling_mode" json:"scaling_mode" diff:"scaling_mode"`
	Bitrate     int    `mapstructure:"bitrate_kbps" json:"bitrate_kbps" diff:"bitrate_kbps"` // 0 uses the preset bitrate
	FrameRate   int    `mapstructure:"frame_rate" json:"frame_rate" diff:"frame_rate"`
}

// AudioSettings configures the audio encoder input
type AudioSettings struct {
	Format     string `mapstructure:"format" json:"format" diff:"format"`
	Channels   int    `mapstructure:"channels" json:"channels" diff:"channels"`
	SampleRate int    `mapstructure:"sample_rate" json:"sample_rate" diff:"sample_rate"`
}

// PhotoFormat selects the still capture codec
type PhotoFormat struct {
	Codec string `mapstructure:"codec" json:"codec" diff:"codec"`
}

const (
	ScalingResizeAspectFill = "resize-aspect-fill"
	ScalingResizeAspect     = "resize-aspect"
)

// DefaultVideoSettings is square 1080 h264, aspect filled
func DefaultVideoSettings() VideoSettings {
	return VideoSettings{
		Codec:       "h264",
		Width:       1080,
		Height:      1080,
		ScalingMode: ScalingResizeAspectFill,
		FrameRate:   30,
	}
}

// DefaultAudioSettings is mono AAC at 48 kHz
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{
		Format:     "aac",
		Channels:   1,
		SampleRate: 48000,
	}
}

// DefaultPhotoFormat is JPEG
func DefaultPhotoFormat() PhotoFormat {
	return PhotoFormat{Codec: "jpeg"}
}
