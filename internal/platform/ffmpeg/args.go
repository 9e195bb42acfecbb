package ffmpeg

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tiroq/fmcamera/internal/media"
)

// audioFD is the child descriptor the writer reads PCM from (ExtraFiles[0])
const audioFD = 3

func commonArgs() []string {
	return []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
}

// cameraArgs captures a v4l2-style device and re-encodes it to an MJPEG
// stream on stdout, so every frame is a complete JPEG whatever the device
// delivers natively.
func cameraArgs(cfg Config, devicePath string, preset media.Preset, frameRate int) []string {
	size := preset.Size()
	if frameRate <= 0 {
		frameRate = 30
	}
	args := commonArgs()
	args = append(args,
		"-f", cfg.VideoFormat,
		"-video_size", fmt.Sprintf("%dx%d", size.Width, size.Height),
		"-framerate", strconv.Itoa(frameRate),
		"-i", devicePath,
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-f", "mjpeg",
		"pipe:1",
	)
	return args
}

// microphoneArgs captures the microphone as interleaved s16le PCM on stdout
func microphoneArgs(cfg Config, device string, audio media.AudioSettings) []string {
	args := commonArgs()
	args = append(args,
		"-f", cfg.AudioFormat,
		"-i", device,
		"-ac", strconv.Itoa(audio.Channels),
		"-ar", strconv.Itoa(audio.SampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	return args
}

// scaleFilter maps the scaling mode onto an ffmpeg filter chain for a
// width x height output
func scaleFilter(v media.VideoSettings) string {
	if v.ScalingMode == media.ScalingResizeAspect {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			v.Width, v.Height, v.Width, v.Height)
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		v.Width, v.Height, v.Width, v.Height)
}

func videoEncoder(codec string) string {
	switch codec {
	case "hevc", "h265":
		return "libx265"
	default:
		return "libx264"
	}
}

func audioEncoder(format string) string {
	switch format {
	case "opus":
		return "libopus"
	default:
		return "aac"
	}
}

// writerArgs muxes MJPEG from stdin and, when audio is set, PCM from fd 3
// into the container at path.
func writerArgs(path string, video media.VideoSettings, preset media.Preset, rotation int, audio *media.AudioSettings) []string {
	frameRate := video.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}
	bitrate := video.Bitrate
	if bitrate <= 0 {
		bitrate = preset.Size().Bitrate
	}

	args := commonArgs()
	args = append(args,
		"-f", "mjpeg",
		"-framerate", strconv.Itoa(frameRate),
		"-i", "pipe:0",
	)
	if audio != nil {
		args = append(args,
			"-f", "s16le",
			"-ac", strconv.Itoa(audio.Channels),
			"-ar", strconv.Itoa(audio.SampleRate),
			"-i", fmt.Sprintf("pipe:%d", audioFD),
		)
	}

	args = append(args,
		"-map", "0:v:0",
		"-vf", scaleFilter(video),
		"-c:v", videoEncoder(video.Codec),
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(frameRate),
	)
	if bitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	}
	if rotation != 0 {
		args = append(args, "-metadata:s:v:0", fmt.Sprintf("rotate=%d", rotation))
	}
	if audio != nil {
		args = append(args,
			"-map", "1:a:0",
			"-c:a", audioEncoder(audio.Format),
			"-ac", strconv.Itoa(audio.Channels),
			"-ar", strconv.Itoa(audio.SampleRate),
		)
	}
	args = append(args,
		"-movflags", "+faststart",
		"-y",
		path,
	)
	return args
}

// thumbnailArgs grabs one PNG frame at offset from the file
func thumbnailArgs(path string, offset time.Duration) []string {
	args := commonArgs()
	args = append(args,
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	return args
}

// audioChunkSize is the byte length of 20 ms of s16le PCM
func audioChunkSize(audio media.AudioSettings) int {
	channels := audio.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := audio.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	return rate / 50 * channels * 2
}
