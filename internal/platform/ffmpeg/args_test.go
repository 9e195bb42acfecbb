package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/tiroq/fmcamera/internal/media"
)

// argValue returns the value following flag, or "" when absent
func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, value string) bool {
	for _, a := range args {
		if a == value {
			return true
		}
	}
	return false
}

func TestCameraArgs(t *testing.T) {
	args := cameraArgs(DefaultConfig(), "/dev/video0", media.PresetMedium, 25)

	if got := argValue(args, "-f"); got != "v4l2" {
		t.Errorf("input format: got %q", got)
	}
	if got := argValue(args, "-video_size"); got != "1280x720" {
		t.Errorf("video size: got %q", got)
	}
	if got := argValue(args, "-framerate"); got != "25" {
		t.Errorf("frame rate: got %q", got)
	}
	if got := argValue(args, "-i"); got != "/dev/video0" {
		t.Errorf("input: got %q", got)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("output should be stdout, got %q", args[len(args)-1])
	}
}

func TestCameraArgs_DefaultFrameRate(t *testing.T) {
	args := cameraArgs(DefaultConfig(), "/dev/video0", media.PresetHigh, 0)
	if got := argValue(args, "-framerate"); got != "30" {
		t.Errorf("frame rate: got %q", got)
	}
}

func TestMicrophoneArgs(t *testing.T) {
	audio := media.AudioSettings{Format: "aac", Channels: 2, SampleRate: 44100}
	args := microphoneArgs(DefaultConfig(), "default", audio)

	if got := argValue(args, "-f"); got != "pulse" {
		t.Errorf("input format: got %q", got)
	}
	if got := argValue(args, "-ac"); got != "2" {
		t.Errorf("channels: got %q", got)
	}
	if got := argValue(args, "-ar"); got != "44100" {
		t.Errorf("sample rate: got %q", got)
	}
	if !hasArg(args, "s16le") {
		t.Error("expected raw s16le output")
	}
}

func TestWriterArgs(t *testing.T) {
	video := media.DefaultVideoSettings()
	audio := media.DefaultAudioSettings()

	tests := []struct {
		name     string
		video    media.VideoSettings
		rotation int
		audio    *media.AudioSettings
		check    func(t *testing.T, args []string)
	}{
		{
			name:     "video and audio",
			video:    video,
			rotation: 90,
			audio:    &audio,
			check: func(t *testing.T, args []string) {
				if !hasArg(args, "pipe:3") {
					t.Error("audio should be read from fd 3")
				}
				if got := argValue(args, "-c:a"); got != "aac" {
					t.Errorf("audio codec: got %q", got)
				}
				if got := argValue(args, "-metadata:s:v:0"); got != "rotate=90" {
					t.Errorf("rotation: got %q", got)
				}
				if got := argValue(args, "-b:v"); got != "6000k" {
					t.Errorf("bitrate should default to the preset: got %q", got)
				}
			},
		},
		{
			name:  "video only",
			video: video,
			check: func(t *testing.T, args []string) {
				if hasArg(args, "pipe:3") || hasArg(args, "-c:a") {
					t.Error("no audio track expected")
				}
				if hasArg(args, "-metadata:s:v:0") {
					t.Error("zero rotation should not be written")
				}
			},
		},
		{
			name:  "aspect fit with explicit bitrate",
			video: media.VideoSettings{Codec: "hevc", Width: 640, Height: 360, ScalingMode: media.ScalingResizeAspect, Bitrate: 900, FrameRate: 24},
			check: func(t *testing.T, args []string) {
				if got := argValue(args, "-c:v"); got != "libx265" {
					t.Errorf("encoder: got %q", got)
				}
				if got := argValue(args, "-vf"); !strings.Contains(got, "pad=640:360") {
					t.Errorf("aspect fit should pad, got %q", got)
				}
				if got := argValue(args, "-b:v"); got != "900k" {
					t.Errorf("bitrate: got %q", got)
				}
				if got := argValue(args, "-r"); got != "24" {
					t.Errorf("frame rate: got %q", got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := writerArgs("/tmp/out.mp4", tt.video, media.PresetHigh, tt.rotation, tt.audio)
			if args[len(args)-1] != "/tmp/out.mp4" {
				t.Fatalf("output path should be last, got %q", args[len(args)-1])
			}
			if got := argValue(args, "-vf"); tt.video.ScalingMode == media.ScalingResizeAspectFill && !strings.Contains(got, "crop=") {
				t.Errorf("aspect fill should crop, got %q", got)
			}
			tt.check(t, args)
		})
	}
}

func TestThumbnailArgs(t *testing.T) {
	args := thumbnailArgs("/tmp/file.mp4", 1500*time.Millisecond)
	if got := argValue(args, "-ss"); got != "1.500" {
		t.Errorf("offset: got %q", got)
	}
	if got := argValue(args, "-vframes"); got != "1" {
		t.Errorf("frames: got %q", got)
	}
	if got := argValue(args, "-c:v"); got != "png" {
		t.Errorf("codec: got %q", got)
	}
}

func TestAudioChunkSize(t *testing.T) {
	tests := []struct {
		audio media.AudioSettings
		want  int
	}{
		{media.AudioSettings{Channels: 1, SampleRate: 48000}, 1920},
		{media.AudioSettings{Channels: 2, SampleRate: 44100}, 3528},
		{media.AudioSettings{}, 1920},
	}
	for _, tt := range tests {
		if got := audioChunkSize(tt.audio); got != tt.want {
			t.Errorf("%+v: got %d, want %d", tt.audio, got, tt.want)
		}
	}
}
