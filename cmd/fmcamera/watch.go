package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/fmcamera/internal/ipc"
)

const (
	pollInterval = 1 * time.Second
	settleDelay  = 50 * time.Millisecond
)

// watchCommands monitors cmd.txt for control commands until ctx is done
func watchCommands(ctx context.Context, handle func(ipc.Command) error) {
	cmdPath := ipc.CommandPath()
	if err := os.MkdirAll(filepath.Dir(cmdPath), 0755); err != nil {
		errLog.Printf("Failed to create command directory: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		watchCommandsWithPolling(ctx, cmdPath, handle)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(filepath.Dir(cmdPath)); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		watchCommandsWithPolling(ctx, cmdPath, handle)
		return
	}
	outLog.Println("Command watcher started (using fsnotify)")

	// polling covers editors and filesystems that miss events
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				watchCommandsWithPolling(ctx, cmdPath, handle)
				return
			}
			if event.Name == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(settleDelay)
				runPending(handle)
				lastCheck = time.Now()
			}

		case <-pollTicker.C:
			if modifiedSince(cmdPath, lastCheck) {
				time.Sleep(settleDelay)
				runPending(handle)
				lastCheck = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				watchCommandsWithPolling(ctx, cmdPath, handle)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is the fallback when fsnotify cannot be used
func watchCommandsWithPolling(ctx context.Context, cmdPath string, handle func(ipc.Command) error) {
	outLog.Printf("Command watcher started (using polling fallback, %s interval)", pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if modifiedSince(cmdPath, lastCheck) {
				time.Sleep(settleDelay)
				runPending(handle)
				lastCheck = time.Now()
			}
		}
	}
}

func modifiedSince(path string, t time.Time) bool {
	info, err := os.Stat(path)
	return err == nil && info.ModTime().After(t)
}

// runPending executes the command in cmd.txt, if any. Handler errors are
// logged by the handler.
func runPending(handle func(ipc.Command) error) {
	cmd, err := ipc.ReadCommand()
	if err != nil {
		errLog.Printf("Failed to read command: %v", err)
		return
	}
	if cmd == "" {
		return
	}
	_ = handle(cmd)
}
