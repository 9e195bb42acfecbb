package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiroq/fmcamera/testutil"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{"start", CmdStart, false},
		{" Photo\n", CmdPhoto, false},
		{"flash-auto", CmdFlashAuto, false},
		{"quit", CmdQuit, false},
		{"pause", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if tt.wantErr {
				testutil.AssertError(t, err, "parse")
				return
			}
			testutil.AssertNoError(t, err, "parse")
			testutil.AssertEqual(t, tt.want, got, "command")
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd, err := ReadCommand()
	testutil.AssertNoError(t, err, "read with no file")
	testutil.AssertEqual(t, Command(""), cmd, "nothing pending")

	testutil.AssertNoError(t, WriteCommand(CmdFlip), "write")
	_, err = os.Stat(filepath.Join(home, ".cache", "fmcamera", "cmd.txt"))
	testutil.AssertNoError(t, err, "command file written")

	cmd, err = ReadCommand()
	testutil.AssertNoError(t, err, "read")
	testutil.AssertEqual(t, CmdFlip, cmd, "command")

	cmd, err = ReadCommand()
	testutil.AssertNoError(t, err, "read after clear")
	testutil.AssertEqual(t, Command(""), cmd, "file cleared")
}

func TestWriteCommandRejectsUnknown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	testutil.AssertError(t, WriteCommand(Command("pause")), "unknown command")
}

func TestReadCommandIgnoresGarbage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(CommandPath(), []byte("rm -rf"), 0644); err != nil {
		t.Fatal(err)
	}
	cmd, err := ReadCommand()
	testutil.AssertNoError(t, err, "read")
	testutil.AssertEqual(t, Command(""), cmd, "garbage ignored")
}

func TestStatusRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := ReadStatus()
	testutil.AssertError(t, err, "no status yet")

	in := &StatusSnapshot{
		State:        "running",
		Recording:    true,
		Position:     "back",
		FlashMode:    "auto",
		OutputPath:   "/tmp/movie.mp4",
		Degradations: []string{"no microphone"},
		LastAction:   string(CmdStart),
		EventClients: 2,
		Timestamp:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		DaemonPID:    42,
	}
	testutil.AssertNoError(t, WriteStatus(in), "write status")
	data, err := os.ReadFile(StatusPath())
	testutil.AssertNoError(t, err, "read status file")
	testutil.AssertJSONContainsKey(t, string(data), "recorder_state", "status keys")

	out, err := ReadStatus()
	testutil.AssertNoError(t, err, "read status")
	testutil.AssertEqual(t, "running", out.State, "state")
	testutil.AssertTrue(t, out.Recording, "recording")
	testutil.AssertEqual(t, "/tmp/movie.mp4", out.OutputPath, "output path")
	testutil.AssertEqual(t, 1, len(out.Degradations), "degradations")
	testutil.AssertEqual(t, 42, out.DaemonPID, "pid")
	testutil.AssertTrue(t, in.Timestamp.Equal(out.Timestamp), "timestamp")

	entries, err := os.ReadDir(CacheDir())
	testutil.AssertNoError(t, err, "read cache dir")
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
