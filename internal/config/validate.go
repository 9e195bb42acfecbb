package config

import (
	"fmt"
	"strings"

	"github.com/r3labs/diff"

	"github.com/tiroq/fmcamera/internal/camera"
	"github.com/tiroq/fmcamera/internal/media"
)

// Validate checks value ranges and enum spellings
func (c *Config) Validate() error {
	if !media.Preset(c.Preset).Valid() {
		return fmt.Errorf("preset must be one of low, medium, high, photo (got %q)", c.Preset)
	}
	if _, err := media.ParsePosition(c.Position); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if _, err := media.ParseFlashMode(c.FlashMode); err != nil {
		return fmt.Errorf("flash_mode: %w", err)
	}
	if c.Video.Width < 16 || c.Video.Width > 7680 {
		return fmt.Errorf("video.width must be between 16 and 7680 (got %d)", c.Video.Width)
	}
	if c.Video.Height < 16 || c.Video.Height > 4320 {
		return fmt.Errorf("video.height must be between 16 and 4320 (got %d)", c.Video.Height)
	}
	if c.Video.Bitrate < 0 {
		return fmt.Errorf("video.bitrate_kbps must not be negative (got %d)", c.Video.Bitrate)
	}
	if c.Video.FrameRate < 1 || c.Video.FrameRate > 120 {
		return fmt.Errorf("video.frame_rate must be between 1 and 120 (got %d)", c.Video.FrameRate)
	}
	switch c.Video.ScalingMode {
	case media.ScalingResizeAspectFill, media.ScalingResizeAspect:
	default:
		return fmt.Errorf("video.scaling_mode must be %s or %s (got %q)",
			media.ScalingResizeAspectFill, media.ScalingResizeAspect, c.Video.ScalingMode)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2 (got %d)", c.Audio.Channels)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 96000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 96000 (got %d)", c.Audio.SampleRate)
	}
	if c.PhotoFormat != "" && !strings.EqualFold(c.PhotoFormat, "jpeg") {
		return fmt.Errorf("photo_format only supports jpeg (got %q)", c.PhotoFormat)
	}
	if c.MaxPictureFileSize < 1024 {
		return fmt.Errorf("max_picture_file_size must be at least 1024 bytes (got %d)", c.MaxPictureFileSize)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path must not be empty")
	}
	if c.ViewWidth < 0 || c.ViewHeight < 0 {
		return fmt.Errorf("view_width and view_height must not be negative")
	}
	switch media.DeviceOrientation(c.DeviceOrientation) {
	case media.DeviceUnknown, media.DevicePortrait, media.DevicePortraitUpsideDown,
		media.DeviceLandscapeLeft, media.DeviceLandscapeRight, media.DeviceFaceUp, media.DeviceFaceDown:
	default:
		return fmt.Errorf("device_orientation %q is not recognised", c.DeviceOrientation)
	}
	if c.MQTT.BrokerURI != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt.broker_uri is set")
	}
	return nil
}

// Camera converts the file configuration into controller settings. Call
// Validate first; unparsable enums fall back to the controller defaults.
func (c *Config) Camera() camera.Config {
	cc := camera.DefaultConfig()
	cc.Preset = media.Preset(c.Preset)
	if pos, err := media.ParsePosition(c.Position); err == nil {
		cc.Position = pos
	}
	if fm, err := media.ParseFlashMode(c.FlashMode); err == nil {
		cc.FlashMode = fm
	}
	cc.Video = c.Video
	cc.Audio = c.Audio
	if c.PhotoFormat != "" {
		cc.PhotoFormat = &media.PhotoFormat{Codec: strings.ToLower(c.PhotoFormat)}
	}
	cc.OutputPath = c.OutputPath
	cc.MaxPictureFileSize = c.MaxPictureFileSize
	cc.SavePhotoToLibrary = c.SavePhotoToLibrary
	cc.SaveVideoToLibrary = c.SaveVideoToLibrary
	cc.SaveReducedImageToLibrary = c.SaveReducedImageToLibrary
	cc.SaveVideoAfterFinalize = c.SaveVideoAfterFinalize
	cc.ForceUpOrientation = c.ForceUpOrientation
	cc.ViewWidth = c.ViewWidth
	cc.ViewHeight = c.ViewHeight
	return cc
}

// Change is one modified setting between two configurations
type Change struct {
	Path string
	From interface{}
	To   interface{}
}

func (ch Change) String() string {
	return fmt.Sprintf("%s: %v -> %v", ch.Path, ch.From, ch.To)
}

// Changes lists the settings that differ between old and new
func Changes(old, new *Config) ([]Change, error) {
	changelog, err := diff.Diff(old, new)
	if err != nil {
		return nil, fmt.Errorf("diff config: %w", err)
	}
	out := make([]Change, 0, len(changelog))
	for _, c := range changelog {
		out = append(out, Change{
			Path: strings.Join(c.Path, "."),
			From: c.From,
			To:   c.To,
		})
	}
	return out, nil
}
