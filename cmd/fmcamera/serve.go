package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/fmcamera/internal/camera"
	"github.com/tiroq/fmcamera/internal/config"
	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/eventstream"
	"github.com/tiroq/fmcamera/internal/library"
	"github.com/tiroq/fmcamera/internal/mqttnotify"
	"github.com/tiroq/fmcamera/internal/pidfile"
	"github.com/tiroq/fmcamera/internal/platform"
	"github.com/tiroq/fmcamera/internal/platform/ffmpeg"
	"github.com/tiroq/fmcamera/internal/recorder"
)

const (
	shutdownTimeout  = 5 * time.Second
	configureTimeout = 10 * time.Second
)

var foreground bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the camera daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&foreground, "foreground", false, "also log to stderr")
}

// backendConfig maps the file settings onto the ffmpeg backend
func backendConfig(cfg *config.Config) ffmpeg.Config {
	bc := ffmpeg.DefaultConfig()
	d := cfg.Devices
	if d.FFmpegPath != "" {
		bc.FFmpegPath = d.FFmpegPath
	}
	if d.VideoFormat != "" {
		bc.VideoFormat = d.VideoFormat
	}
	if d.AudioFormat != "" {
		bc.AudioFormat = d.AudioFormat
	}
	bc.BackDevice = d.Back
	bc.FrontDevice = d.Front
	bc.BackFlash = d.BackFlash
	bc.FrontFlash = d.FrontFlash
	bc.Microphone = d.Microphone
	if cfg.Video.FrameRate > 0 {
		bc.FrameRate = cfg.Video.FrameRate
	}
	bc.Audio = cfg.Audio
	return bc
}

func runServe() (err error) {
	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in fmcamera: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := initLogging(logDir(), foreground); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting fmcamera v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Println("===========================================")

	pidPath := pidfile.DefaultPath("fmcamera")
	pf, err := pidfile.Acquire(pidPath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidPath)
		return err
	}
	defer func() {
		outLog.Println("Cleaning up before exit...")
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()

	diaglog.Version = Version
	logger, err := diaglog.New(diaglog.DefaultPath())
	if err != nil {
		errLog.Printf("Diagnostic log disabled: %v", err)
		logger = diaglog.NewNoOp()
	}
	defer logger.Close()
	if logger.Enabled() {
		outLog.Printf("[STARTUP] Diagnostic log: %s", diaglog.DefaultPath())
	}

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		errLog.Printf("Failed to load config: %v", err)
		return err
	}
	if f := loader.ConfigFile(); f != "" {
		outLog.Printf("[STARTUP] Loaded config: %s", f)
	} else {
		outLog.Println("[STARTUP] No config file found, using defaults (run `fmcamera config init`)")
	}

	bc := backendConfig(cfg)
	if v, err := ffmpeg.Version(bc); err != nil {
		errLog.Printf("[STARTUP] %v (recording will fail until ffmpeg is installed)", err)
	} else {
		outLog.Printf("[STARTUP] %s", v)
	}

	ffOpts := ffmpeg.Options{Logger: logger, Log: errLog}
	backend := ffmpeg.NewBackend(bc, ffOpts)

	lib := library.New(cfg.LibraryDir, Version)
	lib.SetLogger(logger)
	lib.SetErrorLog(errLog)

	var hub *eventstream.Hub
	var preview platform.PreviewSink
	if cfg.Events.Listen != "" {
		hub = eventstream.NewHub()
		hub.SetLogger(logger)
		hub.SetLog(errLog)
		preview = hub
	}

	var notifier *mqttnotify.Notifier
	if cfg.MQTT.BrokerURI != "" {
		notifier, err = mqttnotify.Connect(mqttnotify.Options{
			BrokerURI: cfg.MQTT.BrokerURI,
			ClientID:  cfg.MQTT.ClientID,
			Topic:     cfg.MQTT.Topic,
		})
		if err != nil {
			errLog.Printf("[STARTUP] MQTT disabled: %v", err)
			notifier = nil
		} else {
			notifier.SetLogger(logger)
			notifier.SetLog(errLog)
			defer notifier.Close()
			outLog.Printf("[STARTUP] Publishing to MQTT topic %s", notifier.RecordingTopic())
		}
	}

	mainQ := platform.NewSerialQueue("main", 64)
	recQ := platform.NewSerialQueue("recording", 256)
	defer recQ.Close()
	defer mainQ.Close()

	ctrl := camera.New(cfg.Camera(), backend.Platform(lib, lib, preview, ffOpts),
		camera.WithLogger(logger),
		camera.WithLog(errLog),
		camera.WithMainQueue(mainQ),
		camera.WithRecordingQueue(recQ),
	)

	tracker := recorder.NewTracker()
	tracker.SetLogger(logger)
	d := newDaemon(ctrl, cfg, tracker, logger)
	d.main = mainQ
	defer d.stop()
	d.hub = hub
	d.mqtt = notifier
	d.configFile = loader.ConfigFile()

	video, photo := d.observers()
	ctrl.SetVideoObserver(video)
	ctrl.SetPhotoObserver(photo)

	var srv *http.Server
	if hub != nil {
		hub.OnCommand(d.dispatch)
		hub.SetStatus(func() interface{} { return d.status() })
		ln, err := net.Listen("tcp", cfg.Events.Listen)
		if err != nil {
			errLog.Printf("Failed to listen on %s: %v", cfg.Events.Listen, err)
			return err
		}
		srv = &http.Server{Handler: newMux(hub, d), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errLog.Printf("Event server stopped: %v", err)
			}
		}()
		outLog.Printf("[STARTUP] Event stream on ws://%s/events", ln.Addr())
	}
	if notifier != nil {
		if err := notifier.OnCommand(d.dispatch); err != nil {
			errLog.Printf("[STARTUP] MQTT commands disabled: %v", err)
		}
	}

	ctrl.Configure()
	if d.waitConfigured(configureTimeout) {
		outLog.Printf("[STARTUP] Camera configured: %s", ctrl.SetupReport())
		for _, deg := range ctrl.Capabilities().Degradations() {
			outLog.Printf("[STARTUP] Degraded: %s", deg)
		}
	} else {
		errLog.Printf("[STARTUP] Camera not configured (state %s); check photo library access to %s", ctrl.State(), cfg.LibraryDir)
	}
	d.statusChanged()

	if loader.ConfigFile() != "" {
		loader.Watch(d.applySettings)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go watchCommands(ctx, d.handleCommand)

	logger.Event(diaglog.ComponentDaemon, diaglog.EventStartup, map[string]interface{}{
		"version": Version,
		"pid":     os.Getpid(),
		"config":  loader.ConfigFile(),
	})

	select {
	case <-ctx.Done():
		outLog.Println("Signal received - shutting down")
	case <-d.quit:
	}
	stop()

	if ctrl.IsRecording() {
		if err := d.onMain(ctrl.StopRecording); err != nil {
			errLog.Printf("Failed to stop recording: %v", err)
		}
		waitFor(func() bool { return !ctrl.IsRecording() }, shutdownTimeout)
	}
	_ = d.onMain(func() error {
		backend.Session.Stop()
		return nil
	})
	d.thumbs.Wait()
	lib.Wait()

	if srv != nil {
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			errLog.Printf("Event server shutdown: %v", err)
		}
	}
	d.stop()
	logger.Event(diaglog.ComponentDaemon, diaglog.EventShutdown, nil)
	return nil
}

// newMux serves the websocket stream and a JSON status endpoint
func newMux(hub *eventstream.Hub, d *daemon) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.status()); err != nil {
			errLog.Printf("Failed to encode status: %v", err)
		}
	})
	return mux
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}
