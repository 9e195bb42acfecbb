package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tiroq/fmcamera/internal/camera"
	"github.com/tiroq/fmcamera/internal/media"
)

// Config is the on-disk camera configuration (camera.yaml)
type Config struct {
	Preset    string `mapstructure:"preset" diff:"preset"`
	Position  string `mapstructure:"position" diff:"position"`
	FlashMode string `mapstructure:"flash_mode" diff:"flash_mode"`

	Video       media.VideoSettings `mapstructure:"video" diff:"video"`
	Audio       media.AudioSettings `mapstructure:"audio" diff:"audio"`
	PhotoFormat string              `mapstructure:"photo_format" diff:"photo_format"` // empty uses the JPEG default

	OutputPath         string `mapstructure:"output_path" diff:"output_path"`
	MaxPictureFileSize int    `mapstructure:"max_picture_file_size" diff:"max_picture_file_size"`

	SavePhotoToLibrary        bool `mapstructure:"save_photo_to_library" diff:"save_photo_to_library"`
	SaveVideoToLibrary        bool `mapstructure:"save_video_to_library" diff:"save_video_to_library"`
	SaveReducedImageToLibrary bool `mapstructure:"save_reduced_image_to_library" diff:"save_reduced_image_to_library"`
	SaveVideoAfterFinalize    bool `mapstructure:"save_video_after_finalize" diff:"save_video_after_finalize"`
	ForceUpOrientation        bool `mapstructure:"force_up_orientation" diff:"force_up_orientation"`

	ViewWidth         float64 `mapstructure:"view_width" diff:"view_width"`
	ViewHeight        float64 `mapstructure:"view_height" diff:"view_height"`
	DeviceOrientation string  `mapstructure:"device_orientation" diff:"device_orientation"`

	LibraryDir string       `mapstructure:"library_dir" diff:"library_dir"`
	Devices    DeviceConfig `mapstructure:"devices" diff:"devices"`
	Events     EventsConfig `mapstructure:"events" diff:"events"`
	MQTT       MQTTConfig   `mapstructure:"mqtt" diff:"mqtt"`
}

// DeviceConfig maps camera positions to ffmpeg inputs
type DeviceConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path" diff:"ffmpeg_path"`
	VideoFormat string `mapstructure:"video_format" diff:"video_format"` // ffmpeg -f for cameras
	Back        string `mapstructure:"back" diff:"back"`
	Front       string `mapstructure:"front" diff:"front"`
	FrontFlash  bool   `mapstructure:"front_flash" diff:"front_flash"`
	BackFlash   bool   `mapstructure:"back_flash" diff:"back_flash"`
	AudioFormat string `mapstructure:"audio_format" diff:"audio_format"` // ffmpeg -f for the microphone
	Microphone  string `mapstructure:"microphone" diff:"microphone"`
}

// EventsConfig configures the websocket event stream
type EventsConfig struct {
	Listen string `mapstructure:"listen" diff:"listen"` // empty disables the server
}

// MQTTConfig configures the optional broker notifier
type MQTTConfig struct {
	BrokerURI string `mapstructure:"broker_uri" diff:"broker_uri"` // empty disables publishing
	ClientID  string `mapstructure:"client_id" diff:"client_id"`
	Topic     string `mapstructure:"topic" diff:"topic"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cam := camera.DefaultConfig()
	return &Config{
		Preset:             string(cam.Preset),
		Position:           string(cam.Position),
		FlashMode:          string(cam.FlashMode),
		Video:              cam.Video,
		Audio:              cam.Audio,
		OutputPath:         cam.OutputPath,
		MaxPictureFileSize: cam.MaxPictureFileSize,
		ViewWidth:          cam.ViewWidth,
		ViewHeight:         cam.ViewHeight,
		DeviceOrientation:  string(media.DevicePortrait),
		LibraryDir:         filepath.Join(homeDir(), "Pictures", "fmcamera"),
		Devices: DeviceConfig{
			FFmpegPath:  "ffmpeg",
			VideoFormat: "v4l2",
			Back:        "/dev/video0",
			Front:       "/dev/video2",
			AudioFormat: "pulse",
			Microphone:  "default",
		},
		Events: EventsConfig{Listen: "127.0.0.1:8420"},
		MQTT: MQTTConfig{
			ClientID: "fmcamera",
			Topic:    "fmcamera",
		},
	}
}

// Dir returns ~/.config/fmcamera
func Dir() string {
	return filepath.Join(homeDir(), ".config", "fmcamera")
}

// DefaultPath returns the user config file location
func DefaultPath() string {
	return filepath.Join(Dir(), "camera.yaml")
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// Loader reads camera.yaml and FMCAMERA_* environment overrides
type Loader struct {
	v *viper.Viper
}

// NewLoader selects cfgFile, or searches ~/.config/fmcamera and the working
// directory for camera.yaml when cfgFile is empty.
func NewLoader(cfgFile string) *Loader {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("camera")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FMCAMERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return &Loader{v: v}
}

// Load reads, unmarshals and validates. A missing search-path file is not an
// error; a missing explicit file is.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := Default()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFile returns the file that was read, if any
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch re-decodes the file whenever it changes and hands the result to fn.
// Only effective after a successful Load that found a file.
func (l *Loader) Watch(fn func(*Config, error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		fn(l.decode())
	})
	l.v.WatchConfig()
}

// Load is shorthand for NewLoader(cfgFile).Load()
func Load(cfgFile string) (*Config, error) {
	return NewLoader(cfgFile).Load()
}

// Save writes cfg as YAML to path (DefaultPath when empty)
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)
	return v.WriteConfigAs(path)
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("preset", c.Preset)
	v.SetDefault("position", c.Position)
	v.SetDefault("flash_mode", c.FlashMode)
	v.SetDefault("video.codec", c.Video.Codec)
	v.SetDefault("video.width", c.Video.Width)
	v.SetDefault("video.height", c.Video.Height)
	v.SetDefault("video.scaling_mode", c.Video.ScalingMode)
	v.SetDefault("video.bitrate_kbps", c.Video.Bitrate)
	v.SetDefault("video.frame_rate", c.Video.FrameRate)
	v.SetDefault("audio.format", c.Audio.Format)
	v.SetDefault("audio.channels", c.Audio.Channels)
	v.SetDefault("audio.sample_rate", c.Audio.SampleRate)
	v.SetDefault("photo_format", c.PhotoFormat)
	v.SetDefault("output_path", c.OutputPath)
	v.SetDefault("max_picture_file_size", c.MaxPictureFileSize)
	v.SetDefault("save_photo_to_library", c.SavePhotoToLibrary)
	v.SetDefault("save_video_to_library", c.SaveVideoToLibrary)
	v.SetDefault("save_reduced_image_to_library", c.SaveReducedImageToLibrary)
	v.SetDefault("save_video_after_finalize", c.SaveVideoAfterFinalize)
	v.SetDefault("force_up_orientation", c.ForceUpOrientation)
	v.SetDefault("view_width", c.ViewWidth)
	v.SetDefault("view_height", c.ViewHeight)
	v.SetDefault("device_orientation", c.DeviceOrientation)
	v.SetDefault("library_dir", c.LibraryDir)
	v.SetDefault("devices.ffmpeg_path", c.Devices.FFmpegPath)
	v.SetDefault("devices.video_format", c.Devices.VideoFormat)
	v.SetDefault("devices.back", c.Devices.Back)
	v.SetDefault("devices.front", c.Devices.Front)
	v.SetDefault("devices.back_flash", c.Devices.BackFlash)
	v.SetDefault("devices.front_flash", c.Devices.FrontFlash)
	v.SetDefault("devices.audio_format", c.Devices.AudioFormat)
	v.SetDefault("devices.microphone", c.Devices.Microphone)
	v.SetDefault("events.listen", c.Events.Listen)
	v.SetDefault("mqtt.broker_uri", c.MQTT.BrokerURI)
	v.SetDefault("mqtt.client_id", c.MQTT.ClientID)
	v.SetDefault("mqtt.topic", c.MQTT.Topic)
}
