package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiroq/fmcamera/internal/config"
	"github.com/tiroq/fmcamera/internal/ipc"
	"github.com/tiroq/fmcamera/testutil"
)

func TestInitConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "camera.yaml")

	testutil.AssertNoError(t, initConfig(path, false), "init")
	cfg, err := config.Load(path)
	testutil.AssertNoError(t, err, "load written config")
	testutil.AssertEqual(t, config.Default().Preset, cfg.Preset, "default preset")

	testutil.AssertErrorContains(t, initConfig(path, false), "already exists", "refuse overwrite")
	testutil.AssertNoError(t, initConfig(path, true), "force overwrite")
}

func TestSendCommandWithoutDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	testutil.AssertErrorContains(t, sendCommand("start"), "not running", "no daemon")
	_, err := os.Stat(ipc.CommandPath())
	testutil.AssertTrue(t, os.IsNotExist(err), "nothing written without a daemon")

	err = sendCommand("levitate")
	testutil.AssertErrorContains(t, err, "valid:", "unknown command lists the valid ones")
}

func TestCommandNames(t *testing.T) {
	names := commandNames()
	testutil.AssertEqual(t, len(ipc.Commands), len(names), "names")
	testutil.AssertTrue(t, strings.Contains(commandList(), "flash-auto"), "list")
	testutil.AssertTrue(t, strings.Contains(ctlCmd.Long, "reconfigure"), "help lists commands")
}

func TestRotateLogIfNeeded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fmcamera.out.log")

	testutil.AssertNoError(t, rotateLogIfNeeded(path, 10), "missing log")

	if err := os.WriteFile(path, []byte("short"), 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertNoError(t, rotateLogIfNeeded(path, 10), "small log")
	_, err := os.Stat(path + ".old")
	testutil.AssertTrue(t, os.IsNotExist(err), "not rotated")

	if err := os.WriteFile(path, []byte("long enough to rotate"), 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertNoError(t, rotateLogIfNeeded(path, 10), "large log")
	_, err = os.Stat(path + ".old")
	testutil.AssertNoError(t, err, "rotated")
}

func TestInitLogging(t *testing.T) {
	prevOut, prevErr := outLog, errLog
	t.Cleanup(func() { outLog, errLog = prevOut, prevErr })

	dir := filepath.Join(t.TempDir(), "logs")
	testutil.AssertNoError(t, initLogging(dir, false), "init logging")
	errLog.Printf("camera unplugged")

	data, err := os.ReadFile(filepath.Join(dir, "fmcamera.err.log"))
	testutil.AssertNoError(t, err, "read err log")
	testutil.AssertStringContains(t, string(data), "[fmcamera] ERROR: camera unplugged", "err log line")
}

func TestLogDirOverride(t *testing.T) {
	t.Setenv("FMCAMERA_LOG_DIR", "/var/log/fmcamera")
	testutil.AssertEqual(t, "/var/log/fmcamera", logDir(), "override")
}
