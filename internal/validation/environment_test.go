package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiroq/fmcamera/internal/camera"
	"github.com/tiroq/fmcamera/internal/config"
	"github.com/tiroq/fmcamera/internal/platform"
)

func TestValidateFFmpegVersion(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		ok       bool
		warnings int
	}{
		{"distribution build", "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers", true, 0},
		{"release tag", "ffmpeg version n5.1.4 Copyright (c) 2000-2023", true, 0},
		{"minimum", "ffmpeg version 4.0 Copyright", true, 0},
		{"too old", "ffmpeg version 3.4.8 Copyright", false, 0},
		{"git build", "ffmpeg version N-112345-gabcdef Copyright", true, 1},
		{"garbage", "command not found", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateFFmpegVersion(tt.line)
			if r.OK != tt.ok {
				t.Errorf("OK = %v, want %v (%s)", r.OK, tt.ok, r.Message)
			}
			if len(r.Warnings) != tt.warnings {
				t.Errorf("warnings = %v", r.Warnings)
			}
			if !r.OK && len(r.Fixes) == 0 {
				t.Error("failed check without fixes")
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "video0")
	if err := os.WriteFile(node, nil, 0644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "video9")

	tests := []struct {
		name     string
		path     string
		required bool
		ok       bool
	}{
		{"present", node, true, true},
		{"missing required", missing, true, false},
		{"missing optional", missing, false, true},
		{"unset required", "", true, false},
		{"unset optional", "", false, true},
		{"named source", "default", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateDevice("camera", tt.path, tt.required)
			if r.OK != tt.ok {
				t.Errorf("OK = %v, want %v (%s)", r.OK, tt.ok, r.Message)
			}
		})
	}

	r := ValidateDevice("camera", node, true)
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "not a character device") {
		t.Errorf("regular file warnings: %v", r.Warnings)
	}
}

func TestValidateWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "library", "nested")
	r := ValidateWritableDir("library", dir)
	if !r.OK {
		t.Fatalf("writable dir: %s %v", r.Message, r.Issues)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if r := ValidateWritableDir("library", filepath.Join(file, "sub")); r.OK {
		t.Error("directory under a regular file reported writable")
	}
}

func TestValidateListenAddress(t *testing.T) {
	tests := []struct {
		addr     string
		ok       bool
		warnings int
	}{
		{"", true, 0},
		{"127.0.0.1:8420", true, 0},
		{":8420", true, 1},
		{"0.0.0.0:8420", true, 1},
		{"localhost", false, 0},
		{"127.0.0.1:http", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			r := ValidateListenAddress(tt.addr)
			if r.OK != tt.ok || len(r.Warnings) != tt.warnings {
				t.Errorf("got OK=%v warnings=%v, want OK=%v warnings=%d", r.OK, r.Warnings, tt.ok, tt.warnings)
			}
		})
	}
}

func TestValidateBrokerURI(t *testing.T) {
	if r := ValidateBrokerURI(""); !r.OK {
		t.Error("empty broker should be accepted")
	}
	if r := ValidateBrokerURI("mqtt://broker.local"); !r.OK || !strings.Contains(r.Message, "tcp://broker.local:1883") {
		t.Errorf("mqtt uri: %v %s", r.OK, r.Message)
	}
	if r := ValidateBrokerURI("http://broker.local"); r.OK {
		t.Error("http scheme accepted")
	}
}

func TestSuggestedFixes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("attach: %w", platform.ErrNoDevice), "No capture device"},
		{camera.ErrWriterUnavailable, "recording file"},
		{camera.ErrFinishing, "still being written"},
		{camera.ErrNotConfigured, "not configured"},
		{errors.New("boom"), "FMCAMERA_DEBUG"},
	}
	for _, tt := range tests {
		fixes := SuggestedFixes(tt.err)
		if !strings.Contains(strings.Join(fixes, "\n"), tt.want) {
			t.Errorf("SuggestedFixes(%v) = %v, want mention of %q", tt.err, fixes, tt.want)
		}
	}
	if fixes := SuggestedFixes(nil); len(fixes) != 0 {
		t.Errorf("nil error fixes: %v", fixes)
	}
}

func TestCheckHealth(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	back := filepath.Join(home, "video0")
	if err := os.WriteFile(back, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Devices.Back = back
	cfg.Devices.Front = filepath.Join(home, "video2")
	cfg.OutputPath = filepath.Join(home, "out", "movie.mp4")
	cfg.LibraryDir = filepath.Join(home, "library")

	report := CheckHealth(cfg, "ffmpeg version 6.0 Copyright", nil)
	if !report.OK {
		t.Fatalf("expected healthy report:\n%s", report)
	}
	out := report.String()
	for _, want := range []string{"[ok  ] ffmpeg", "back camera", "front camera", "library"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	report = CheckHealth(cfg, "", errors.New("exec: \"ffmpeg\": executable file not found"))
	if report.OK {
		t.Error("missing ffmpeg reported healthy")
	}
	if !strings.Contains(report.String(), "[FAIL] ffmpeg") {
		t.Errorf("report:\n%s", report)
	}

	cfg.Position = "front"
	if report := CheckHealth(cfg, "ffmpeg version 6.0", nil); report.OK {
		t.Error("missing front camera should fail when it is the active position")
	}
}
