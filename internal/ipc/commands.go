package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Command is a control request from `fmcamera ctl`, a websocket client or
// the MQTT command topic
type Command string

const (
	CmdStart       Command = "start"       // Start recording
	CmdStop        Command = "stop"        // Stop recording
	CmdToggle      Command = "toggle"      // Toggle recording
	CmdPhoto       Command = "photo"       // Take a photo
	CmdFlip        Command = "flip"        // Switch between back and front camera
	CmdFlashOn     Command = "flash-on"    // Force the flash
	CmdFlashOff    Command = "flash-off"   // Disable the flash
	CmdFlashAuto   Command = "flash-auto"  // Let the device decide
	CmdReconfigure Command = "reconfigure" // Rebuild the capture pipeline
	CmdQuit        Command = "quit"        // Shut the daemon down
)

// Commands lists every accepted command
var Commands = []Command{
	CmdStart, CmdStop, CmdToggle, CmdPhoto, CmdFlip,
	CmdFlashOn, CmdFlashOff, CmdFlashAuto, CmdReconfigure, CmdQuit,
}

// ParseCommand validates s
func ParseCommand(s string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Commands {
		if c == cmd {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// CacheDir is ~/.cache/fmcamera
func CacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "fmcamera")
}

// CommandPath is the command file the daemon watches
func CommandPath() string {
	return filepath.Join(CacheDir(), "cmd.txt")
}

// WriteCommand writes a command to ~/.cache/fmcamera/cmd.txt
func WriteCommand(cmd Command) error {
	if _, err := ParseCommand(string(cmd)); err != nil {
		return err
	}
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears the command file. It returns an empty
// command when nothing is pending or the content is not a known command.
func ReadCommand() (Command, error) {
	data, err := os.ReadFile(CommandPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(CommandPath(), []byte(""), 0644); err != nil {
		return "", err
	}

	if strings.TrimSpace(string(data)) == "" {
		return "", nil
	}
	cmd, err := ParseCommand(string(data))
	if err != nil {
		return "", nil
	}
	return cmd, nil
}
