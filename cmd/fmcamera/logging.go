package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

const maxLogSize = 10 * 1024 * 1024

// logDir is FMCAMERA_LOG_DIR or the temp dir
func logDir() string {
	if d := os.Getenv("FMCAMERA_LOG_DIR"); d != "" {
		return d
	}
	return os.TempDir()
}

// initLogging opens fmcamera.out.log and fmcamera.err.log, rotating them
// when they exceed maxLogSize. With foreground set both also go to stderr.
func initLogging(dir string, foreground bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	outLogPath := filepath.Join(dir, "fmcamera.out.log")
	errLogPath := filepath.Join(dir, "fmcamera.err.log")

	if err := rotateLogIfNeeded(outLogPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		outFile.Close()
		return err
	}

	var outW, errW io.Writer = outFile, errFile
	if foreground {
		outW = io.MultiWriter(outFile, os.Stderr)
		errW = io.MultiWriter(errFile, os.Stderr)
	}
	outLog = log.New(outW, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errW, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded renames logPath to logPath.old once it reaches maxSize
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
