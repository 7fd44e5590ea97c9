package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/mukha/internal/actuator"
	"github.com/ayusman/mukha/internal/app"
	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/landmark"
	"github.com/ayusman/mukha/internal/logging"
	"github.com/ayusman/mukha/internal/server"
	"github.com/ayusman/mukha/internal/store"
	"github.com/ayusman/mukha/internal/tray"
)

const version = "0.1.0"

// telemetryFPS caps state frames sent to websocket clients.
const telemetryFPS = 15

type options struct {
	configPath string
	envFile    string
	dbPath     string
	addr       string
	camera     int
	dryRun     bool
	noTray     bool
	logFile    string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "mukha",
		Short: "Hands-free pointer control from facial landmarks",
		Long: `mukha tracks your face through the webcam and turns head movement into
pointer motion. Winks click, closing both eyes pauses, opening the mouth
toggles scroll mode. Calibration runs on first start and whenever you ask.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "JSON configuration file")
	f.StringVar(&opts.envFile, "env", ".env", "dotenv file with MUKHA_* overrides")
	f.StringVar(&opts.dbPath, "db", defaultDataPath("mukha.db"), "SQLite database path")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	rf := cmd.Flags()
	rf.StringVar(&opts.addr, "addr", "127.0.0.1:8080", "HTTP listen address, empty to disable")
	rf.IntVar(&opts.camera, "camera", 0, "camera device id")
	rf.BoolVar(&opts.dryRun, "dry-run", false, "log pointer actions instead of performing them")
	rf.BoolVar(&opts.noTray, "no-tray", false, "run without the system tray menu")
	rf.StringVar(&opts.logFile, "log-file", "", "also write logs to this file, rotated")

	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(opts.dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			cfg, err := loadConfig(cmd, opts, st)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

// loadConfig layers, lowest first: defaults, the config file, settings saved
// from the HTTP API, MUKHA_* environment variables and command-line flags.
func loadConfig(cmd *cobra.Command, opts *options, st *store.Store) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if st != nil {
		if _, err := st.Settings().LoadConfig(cfg); err != nil {
			return nil, fmt.Errorf("load saved settings: %w", err)
		}
	}
	if err := cfg.ApplyEnv(opts.envFile); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("camera") {
		cfg.Runtime.CameraID = opts.camera
	}
	if flags.Changed("dry-run") {
		cfg.Runtime.DryRun = opts.dryRun
	}
	if opts.logLevel != "" {
		cfg.Runtime.LogLevel = opts.logLevel
	}
	if cfg.Runtime.PluginDir == "" {
		cfg.Runtime.PluginDir = defaultDataPath("plugins")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cfg, err := loadConfig(cmd, opts, st)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{Level: cfg.Runtime.LogLevel, File: opts.logFile})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"version": version, "db": st.Path()}).Info("Starting mukha")

	act, screenW, screenH := newActuator(cfg, log)

	source, err := landmark.NewMediaPipeSource(landmark.DefaultConfig())
	var src landmark.Source = source
	if err != nil {
		log.WithError(err).Warn("Face mesh service not available, no face will be tracked")
		src = landmark.NewMockSource()
	}
	defer src.Close()

	hub := server.NewTelemetryHub(telemetryFPS, log)
	a, err := app.New(app.Config{
		Config:   cfg,
		Store:    st,
		Camera:   capture.NewCamera(capture.DefaultOptions(cfg.Runtime.CameraID)),
		Source:   src,
		Actuator: act,
		Hub:      hub,
		ScreenW:  screenW,
		ScreenH:  screenH,
		Log:      log,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- a.Run(ctx) }()

	url := ""
	if opts.addr != "" {
		srv := server.New(server.Config{
			StaticDir:  findWebDir(),
			Store:      st,
			Controller: a,
			Hub:        hub,
			Log:        log,
		})
		url = "http://" + opts.addr
		go func() { errCh <- srv.Run(ctx, opts.addr) }()
	}

	waiting := 1
	if opts.addr != "" {
		waiting = 2
	}
	done := make(chan error, 1)
	go func() {
		var firstErr error
		for i := 0; i < waiting; i++ {
			if err := <-errCh; err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
		}
		done <- firstErr
	}()

	if !opts.noTray {
		t := tray.New(a)
		a.SetObserver(t)
		t.OnQuit(cancel)
		t.OnSettings(func() {
			if url == "" {
				log.Warn("HTTP server disabled, no settings page")
				return
			}
			if err := openBrowser(url); err != nil {
				log.WithError(err).Warn("Failed to open browser")
			}
		})
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
		cancel()
	}

	if err := <-done; err != nil {
		log.WithError(err).Error("mukha stopped with an error")
		return err
	}
	log.Info("mukha stopped")
	return nil
}

// newActuator picks the pointer backend and the screen size it works in.
func newActuator(cfg *config.Config, log logrus.FieldLogger) (actuator.Actuator, int, int) {
	if cfg.Runtime.DryRun {
		log.Info("Dry run: pointer actions are logged, not performed")
		return actuator.NewLogActuator(log), 1920, 1080
	}
	w, h, err := actuator.ScreenSize()
	if err != nil {
		log.WithError(err).Warn("Could not read screen size, assuming 1920x1080")
		w, h = 1920, 1080
	}
	return actuator.NewRobotActuator(), w, h
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".mukha", name)
	}
	return filepath.Join(home, ".mukha", name)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mukha/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web", defaultDataPath("web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd":
		cmd = exec.Command("xdg-open", url)
	default:
		return errors.New("unsupported platform")
	}
	return cmd.Start()
}
