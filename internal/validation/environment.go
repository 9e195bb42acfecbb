// Package validation checks that the host can run the camera: a usable
// ffmpeg, the configured capture devices and writable output locations.
package validation

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tiroq/fmcamera/internal/camera"
	"github.com/tiroq/fmcamera/internal/config"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/mqttnotify"
	"github.com/tiroq/fmcamera/internal/platform"
)

// Minimum ffmpeg release with the mjpeg pipe and -movflags behaviour we use
const (
	minFFmpegMajor = 4
	minFFmpegMinor = 0
)

// ValidationResult contains the result of one environment check
type ValidationResult struct {
	Name     string
	OK       bool
	Message  string
	Issues   []string
	Warnings []string
	Fixes    []string
}

func (r *ValidationResult) fail(issue, fix string) *ValidationResult {
	r.OK = false
	r.Issues = append(r.Issues, issue)
	if fix != "" {
		r.Fixes = append(r.Fixes, fix)
	}
	return r
}

var ffmpegVersionRe = regexp.MustCompile(`version n?(\d+)\.(\d+)`)

// ValidateFFmpegVersion checks the first line of `ffmpeg -version`
func ValidateFFmpegVersion(versionLine string) *ValidationResult {
	result := &ValidationResult{Name: "ffmpeg", OK: true}

	if strings.Contains(versionLine, "version N-") || strings.Contains(versionLine, "version git-") {
		result.Message = "ffmpeg development build: " + versionLine
		result.Warnings = append(result.Warnings, "Version of a git build cannot be verified")
		return result
	}

	matches := ffmpegVersionRe.FindStringSubmatch(versionLine)
	if len(matches) < 3 {
		result.Message = fmt.Sprintf("Could not parse ffmpeg version: %s", versionLine)
		return result.fail("Invalid version format", "Install ffmpeg from your distribution or https://ffmpeg.org")
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	if major < minFFmpegMajor || (major == minFFmpegMajor && minor < minFFmpegMinor) {
		result.Message = fmt.Sprintf("ffmpeg %d.%d requires update to %d.%d+", major, minor, minFFmpegMajor, minFFmpegMinor)
		return result.fail(
			fmt.Sprintf("ffmpeg %d.%d is too old", major, minor),
			fmt.Sprintf("Update ffmpeg to %d.%d or later", minFFmpegMajor, minFFmpegMinor),
		)
	}

	result.Message = fmt.Sprintf("ffmpeg %d.%d is compatible (requires %d.%d+)", major, minor, minFFmpegMajor, minFFmpegMinor)
	return result
}

// ValidateDevice checks a capture node. Names not starting with "/" are
// source names resolved by the audio server and cannot be checked here.
func ValidateDevice(label, path string, required bool) *ValidationResult {
	result := &ValidationResult{Name: label, OK: true}

	if path == "" {
		if required {
			result.Message = label + " not configured"
			return result.fail("No device configured", "Set the device path in camera.yaml")
		}
		result.Message = label + " disabled"
		return result
	}
	if !strings.HasPrefix(path, "/") {
		result.Message = fmt.Sprintf("%s uses source %q", label, path)
		result.Warnings = append(result.Warnings, "Named sources are resolved by the audio server at capture time")
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		result.Message = fmt.Sprintf("%s %s not found", label, path)
		if !required {
			// capture degrades without it
			result.Warnings = append(result.Warnings, err.Error())
			return result
		}
		return result.fail(err.Error(), "Connect the device or update camera.yaml (see `v4l2-ctl --list-devices`)")
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		result.Warnings = append(result.Warnings, path+" is not a character device")
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		result.Message = fmt.Sprintf("%s %s is not readable", label, path)
		return result.fail(err.Error(), "Add your user to the video group: sudo usermod -aG video $USER")
	}
	f.Close()

	result.Message = fmt.Sprintf("%s %s is accessible", label, path)
	return result
}

// ValidateWritableDir checks that files can be created in dir, creating it
// if needed.
func ValidateWritableDir(label, dir string) *ValidationResult {
	result := &ValidationResult{Name: label, OK: true}

	if err := os.MkdirAll(dir, 0755); err != nil {
		result.Message = fmt.Sprintf("%s %s cannot be created", label, dir)
		return result.fail(err.Error(), "Choose a directory you own")
	}
	f, err := os.CreateTemp(dir, ".fmcamera-doctor-*")
	if err != nil {
		result.Message = fmt.Sprintf("%s %s is not writable", label, dir)
		return result.fail(err.Error(), "Fix the permissions or choose another directory")
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	result.Message = fmt.Sprintf("%s %s is writable", label, dir)
	return result
}

// ValidateListenAddress checks the event stream address
func ValidateListenAddress(addr string) *ValidationResult {
	result := &ValidationResult{Name: "events", OK: true}
	if addr == "" {
		result.Message = "event stream disabled"
		return result
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		result.Message = "invalid listen address " + addr
		return result.fail(err.Error(), "Use host:port, e.g. 127.0.0.1:8420")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		result.Warnings = append(result.Warnings, "Event stream is reachable from other hosts")
	}
	if _, err := strconv.Atoi(port); err != nil {
		result.Message = "invalid port " + port
		return result.fail(err.Error(), "Use a numeric port")
	}
	result.Message = "event stream on " + addr
	return result
}

// ValidateBrokerURI checks the optional MQTT broker
func ValidateBrokerURI(uri string) *ValidationResult {
	result := &ValidationResult{Name: "mqtt", OK: true}
	if uri == "" {
		result.Message = "mqtt notifications disabled"
		return result
	}
	addr, _, _, err := mqttnotify.BrokerAddress(uri)
	if err != nil {
		result.Message = "invalid broker uri"
		return result.fail(err.Error(), "Use mqtt://host:1883, mqtts://host:8883 or ws://host:port/path")
	}
	result.Message = "mqtt broker " + addr
	return result
}

// SuggestedFixes returns troubleshooting steps for errors surfaced by the
// camera.
func SuggestedFixes(err error) []string {
	var fixes []string

	switch {
	case err == nil:
	case errors.Is(err, platform.ErrNoDevice):
		fixes = append(fixes, "No capture device was found")
		fixes = append(fixes, "")
		fixes = append(fixes, "Verify:")
		fixes = append(fixes, "  1. The camera is connected (ls /dev/video*)")
		fixes = append(fixes, "  2. devices.back and devices.front in camera.yaml point at it")
		fixes = append(fixes, "  3. Run `fmcamera doctor`")
	case errors.Is(err, camera.ErrWriterUnavailable):
		fixes = append(fixes, "The recording file could not be opened")
		fixes = append(fixes, "")
		fixes = append(fixes, "Steps to fix:")
		fixes = append(fixes, "  1. Check free disk space")
		fixes = append(fixes, "  2. Make sure output_path is in a writable directory")
		fixes = append(fixes, "  3. Run `fmcamera ctl reconfigure`")
	case errors.Is(err, camera.ErrFinishing):
		fixes = append(fixes, "The previous recording is still being written; try again shortly")
	case errors.Is(err, camera.ErrNotConfigured):
		fixes = append(fixes, "The camera is not configured")
		fixes = append(fixes, "Check camera access permissions and run `fmcamera ctl reconfigure`")
	default:
		fixes = append(fixes, fmt.Sprintf("Error: %v", err))
		fixes = append(fixes, "Run with FMCAMERA_DEBUG=true and check the diagnostic log")
	}
	return fixes
}

// Report is the outcome of CheckHealth
type Report struct {
	OK      bool
	Results []*ValidationResult
}

// String renders one line per check followed by issues and fixes
func (r *Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		mark := "ok  "
		if !res.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", mark, res.Name, res.Message)
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "       warning: %s\n", w)
		}
		for _, i := range res.Issues {
			fmt.Fprintf(&b, "       issue: %s\n", i)
		}
		for _, f := range res.Fixes {
			fmt.Fprintf(&b, "       fix: %s\n", f)
		}
	}
	return b.String()
}

// CheckHealth runs every check for cfg. versionLine and versionErr are the
// result of probing ffmpeg.
func CheckHealth(cfg *config.Config, versionLine string, versionErr error) *Report {
	report := &Report{OK: true}
	add := func(r *ValidationResult) {
		report.Results = append(report.Results, r)
		if !r.OK {
			report.OK = false
		}
	}

	if versionErr != nil {
		r := &ValidationResult{Name: "ffmpeg", Message: "ffmpeg not runnable"}
		add(r.fail(versionErr.Error(), "Install ffmpeg or set devices.ffmpeg_path"))
	} else {
		add(ValidateFFmpegVersion(versionLine))
	}

	backRequired := cfg.Position != string(media.PositionFront)
	add(ValidateDevice("back camera", cfg.Devices.Back, backRequired))
	add(ValidateDevice("front camera", cfg.Devices.Front, !backRequired))
	add(ValidateDevice("microphone", cfg.Devices.Microphone, false))
	add(ValidateWritableDir("output directory", filepath.Dir(cfg.OutputPath)))
	add(ValidateWritableDir("library", cfg.LibraryDir))
	add(ValidateListenAddress(cfg.Events.Listen))
	add(ValidateBrokerURI(cfg.MQTT.BrokerURI))
	return report
}
