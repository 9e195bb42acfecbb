package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

const logPrefix = "[fmcamera]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	cfgFile string

	outLog *log.Logger
	errLog *log.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fmcamera",
	Short:         "Camera capture daemon",
	Long:          `fmcamera records video and takes size-bounded JPEG photos from v4l2 cameras through ffmpeg.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fmcamera v%s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/fmcamera/camera.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ctlCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportDiagCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
