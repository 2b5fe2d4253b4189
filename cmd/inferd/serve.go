package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/acquire"
	"inferd/internal/catalog"
	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/fetch"
	"inferd/internal/hardware"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/proc"
)

const shutdownGrace = 15 * time.Second

type serveFlags struct {
	addr        string
	modelsDir   string
	dataDir     string
	autostart   bool
	corsOrigins []string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inferd daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(root, f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", os.Getenv("INFERD_ADDR"), "HTTP listen address, e.g. 127.0.0.1:8090 (defaults INFERD_ADDR or config)")
	cmd.Flags().StringVar(&f.modelsDir, "models-dir", "", "Directory scanned for model files (overrides config)")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "Root for downloaded binaries, work dirs and state (overrides config)")
	cmd.Flags().BoolVar(&f.autostart, "autostart", true, "Bring servers up with persisted or default configs on boot")
	cmd.Flags().StringSliceVar(&f.corsOrigins, "cors-origin", nil, "Allowed CORS origin, repeatable; CORS stays off when empty")
	return cmd
}

// loadConfig overlays flag values onto the file (or built-in) configuration.
func loadConfig(root *rootFlags, f *serveFlags) (config.Config, error) {
	cfg := config.Default()
	if root.configPath != "" {
		var err error
		cfg, err = config.Load(root.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.modelsDir != "" {
		cfg.ModelsDir = f.modelsDir
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if root.logLevel != "" {
		cfg.LogLevel = root.logLevel
	}
	return cfg, nil
}

func runServe(root *rootFlags, f *serveFlags) error {
	cfg, err := loadConfig(root, f)
	if err != nil {
		return err
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)

	modelsDir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return err
	}
	dataDir, err := fsutil.ExpandHome(cfg.DataDir)
	if err != nil {
		return err
	}
	stateDir := filepath.Join(dataDir, "state")
	jobsDir := filepath.Join(dataDir, "jobs")
	for _, d := range []string{modelsDir, stateDir, jobsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	textArtifact, err := fsutil.ExpandHome(cfg.Text.TestArtifact)
	if err != nil {
		return err
	}
	imageArtifact, err := fsutil.ExpandHome(cfg.Image.TestArtifact)
	if err != nil {
		return err
	}

	hw := hardware.NewSystem(log)
	cat, err := catalog.Open(modelsDir, log)
	if err != nil {
		return fmt.Errorf("open model catalog: %w", err)
	}
	sup := proc.NewSupervisor(log)
	acq := acquire.New(fetch.New(nil, log), hw, sup, log)
	arb := manager.NewResourceArbiter(arbiterConfig(cfg.Arbiter), hw, nil, log)

	text := manager.NewTextServer(manager.TextServerConfig{
		DefaultPort:    cfg.Text.Port,
		DefaultModel:   cfg.Text.Model,
		BinSpec:        textBinSpec(cfg.Text, dataDir, stateDir, sup),
		TestArtifact:   textArtifact,
		StateDir:       stateDir,
		Health:         healthConfig(cfg.Health, time.Duration(cfg.Health.TextTimeoutS)*time.Second),
		OverheadFactor: cfg.Arbiter.OverheadFactor,
		SafetyFraction: cfg.Arbiter.SafetyFraction,
	}, cat, acq, sup, hw, arb, nil, log)

	image := manager.NewImageServer(manager.ImageServerConfig{
		DefaultPort:  cfg.Image.Port,
		DefaultModel: cfg.Image.Model,
		BinSpec:      imageBinSpec(cfg.Image, dataDir, stateDir, sup),
		TestArtifact: imageArtifact,
		StateDir:     stateDir,
		WorkDir:      jobsDir,
		Health:       healthConfig(cfg.Health, time.Duration(cfg.Health.ImageTimeoutS)*time.Second),
	}, cat, acq, sup, arb, arb, nil, log)

	mgr := manager.New(cat, text, image, arb, hw, log)

	httpapi.SetLogger(log)
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	if len(f.corsOrigins) > 0 {
		httpapi.SetCORSOptions(true, f.corsOrigins, nil, nil)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", modelsDir).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if f.autostart {
		go mgr.Autostart(baseCtx, stateDir)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		cancelBase()
		_ = mgr.Close(context.Background())
		return fmt.Errorf("http server: %w", err)
	}

	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := mgr.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server stop incomplete")
	}
	return nil
}

// arbiterConfig converts the file-facing arbiter section to runtime units.
func arbiterConfig(a config.Arbiter) manager.ArbiterConfig {
	return manager.ArbiterConfig{
		SafetyFraction:    a.SafetyFraction,
		OverheadFactor:    a.OverheadFactor,
		DefaultImageBytes: uint64(a.ImageEstimateGiB * float64(1<<30)),
	}
}

// healthConfig converts the file-facing health section; zero fields keep
// the built-in backoff.
func healthConfig(h config.Health, overall time.Duration) manager.HealthConfig {
	hc := manager.DefaultHealthConfig()
	if h.InitialDelayMS > 0 {
		hc.InitialDelay = time.Duration(h.InitialDelayMS) * time.Millisecond
	}
	if h.Multiplier > 0 {
		hc.Multiplier = h.Multiplier
	}
	if h.MaxDelayMS > 0 {
		hc.MaxDelay = time.Duration(h.MaxDelayMS) * time.Millisecond
	}
	if overall > 0 {
		hc.Overall = overall
	}
	return hc
}
