package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/fmcamera/internal/config"
	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/ipc"
	"github.com/tiroq/fmcamera/internal/pidfile"
	"github.com/tiroq/fmcamera/internal/platform/ffmpeg"
	"github.com/tiroq/fmcamera/internal/validation"
)

var (
	statusJSON  bool
	diagDest    string
	forceConfig bool
)

var ctlCmd = &cobra.Command{
	Use:       "ctl <command>",
	Short:     "Send a command to the running daemon",
	Long:      "Send a command to the running daemon. Commands: " + commandList(),
	Args:      cobra.ExactArgs(1),
	ValidArgs: commandNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var exportDiagCmd = &cobra.Command{
	Use:   "export-diag",
	Short: "Bundle the diagnostic log for a bug report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportDiag(diagDest)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage camera.yaml",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}
		return initConfig(path, forceConfig)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check ffmpeg, devices and output directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status.json")
	exportDiagCmd.Flags().StringVar(&diagDest, "dest", ".", "directory for the bundle")
	configInitCmd.Flags().BoolVar(&forceConfig, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func commandNames() []string {
	names := make([]string, 0, len(ipc.Commands))
	for _, c := range ipc.Commands {
		names = append(names, string(c))
	}
	return names
}

func commandList() string {
	return strings.Join(commandNames(), ", ")
}

// daemonPID returns the PID of a live daemon or an error explaining why
// there is none
func daemonPID() (int, error) {
	pid, running := pidfile.Lookup(pidfile.DefaultPath("fmcamera"))
	if !running {
		return 0, errors.New("fmcamera serve is not running")
	}
	return pid, nil
}

func sendCommand(raw string) error {
	cmd, err := ipc.ParseCommand(raw)
	if err != nil {
		return fmt.Errorf("%w (valid: %s)", err, commandList())
	}
	pid, err := daemonPID()
	if err != nil {
		return err
	}
	if err := ipc.WriteCommand(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	fmt.Printf("Sent %s to PID %d\n", cmd, pid)
	return nil
}

func showStatus() error {
	s, err := ipc.ReadStatus()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("no status yet; start the daemon with `fmcamera serve`")
		}
		return err
	}
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Print(formatStatus(s, time.Now()))
	if _, err := daemonPID(); err != nil {
		fmt.Println("Warning: daemon is not running; status may be stale")
	}
	return nil
}

func formatStatus(s *ipc.StatusSnapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State:      %s\n", s.State)
	fmt.Fprintf(&b, "Recording:  %v\n", s.Recording)
	fmt.Fprintf(&b, "Camera:     %s (flash %s)\n", s.Position, s.FlashMode)
	fmt.Fprintf(&b, "Output:     %s\n", s.OutputPath)
	if len(s.Degradations) > 0 {
		fmt.Fprintf(&b, "Degraded:   %s\n", strings.Join(s.Degradations, ", "))
	}
	if s.LastAction != "" {
		fmt.Fprintf(&b, "Last:       %s\n", s.LastAction)
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", s.LastError)
	}
	fmt.Fprintf(&b, "Clients:    %d websocket, mqtt %v\n", s.EventClients, s.MQTTConnected)
	fmt.Fprintf(&b, "Updated:    %s ago (PID %d, v%s)\n", now.Sub(s.Timestamp).Round(time.Second), s.DaemonPID, s.DaemonVersion)
	return b.String()
}

func exportDiag(dest string) error {
	diaglog.Version = Version
	path, n, err := diaglog.Export(diaglog.DefaultPath(), dest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w\nhint: run with FMCAMERA_DEBUG=true to enable logging", err)
		}
		return err
	}
	fmt.Printf("Wrote: %s (%d lines)\n", path, n)
	return nil
}

func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s\n", path)
	return nil
}

func runDoctor() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	version, verr := ffmpeg.Version(backendConfig(cfg))
	report := validation.CheckHealth(cfg, version, verr)
	fmt.Print(report)
	if !report.OK {
		return errors.New("environment check failed")
	}
	fmt.Println("All checks passed")
	return nil
}
