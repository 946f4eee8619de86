package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuedeck/cuedeck-agent/internal/api"
	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/config"
	"github.com/cuedeck/cuedeck-agent/internal/db"
	"github.com/cuedeck/cuedeck-agent/internal/engine"
	"github.com/cuedeck/cuedeck-agent/internal/freesound"
	"github.com/cuedeck/cuedeck-agent/internal/logging"
	"github.com/cuedeck/cuedeck-agent/internal/persist"
	"github.com/cuedeck/cuedeck-agent/internal/playback"
	"github.com/cuedeck/cuedeck-agent/internal/production"
	"github.com/cuedeck/cuedeck-agent/internal/timeline"
	"github.com/cuedeck/cuedeck-agent/internal/ui"
	"github.com/cuedeck/cuedeck-agent/internal/watcher"
)

const doctorTimeout = 5 * time.Second

type serveOptions struct {
	headless bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run without the system tray")
	return cmd
}

func runServe(parent context.Context, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger, logCloser := logging.NewFileLogger(cfg.LogLevel(), cfg.LogFile())
	defer logCloser.Close()
	logger.Info("starting cuedeck agent", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	if version, err := database.SchemaVersion(); err == nil {
		logger.Info("database ready", "schema", version)
	}

	repo := persist.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(parent, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	show, err := loadProduction(cfg.ProductionPath())
	if err != nil {
		return err
	}

	printBanner(cfg.Port(), authToken, show)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port())
	locators := playback.NewLocators(baseURL, logging.WithComponent(logger, "locators"))

	doctor := engine.NewDoctor(cfg.FFplayPath(), cfg.FFprobePath(), nil, logging.WithComponent(logger, "doctor"))
	probeCtx, probeCancel := context.WithTimeout(parent, doctorTimeout)
	caps := doctor.Refresh(probeCtx)
	probeCancel()
	logger.Info("media engine capabilities detected", "can_play", caps.CanPlay, "can_probe", caps.CanProbe)

	storeCfg := production.Config{
		Production:   show,
		Repository:   repo,
		Factory:      engine.NewFFplayFactory(cfg.FFplayPath(), logging.WithComponent(logger, "ffplay")),
		Prober:       engine.NewFFprobe(cfg.FFprobePath()),
		Locators:     locators,
		Searcher:     freesound.NewClient(cfg.FreesoundBaseURL(), cfg.FreesoundAPIKey(), logging.WithComponent(logger, "freesound")),
		ScanMaxDepth: cfg.ScanMaxDepth(),
		Autoplay:     cfg.Autoplay(),
		Logger:       logger,
	}
	if cfg.FreesoundAPIKey() == "" {
		logger.Warn("FREESOUND_API_KEY not set, sound search disabled")
	}

	fsw, err := watcher.NewFSWatcher(watcher.DefaultDebounce, catalog.IsAudioFile, logging.WithComponent(logger, "watcher"))
	if err != nil {
		logger.Warn("library watcher unavailable", "error", err)
	} else {
		storeCfg.Watcher = fsw
	}

	store := production.New(storeCfg)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	store.Init(ctx)
	go store.Run(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Store:     store,
		Media:     playback.NewServer(locators, logging.WithComponent(logger, "media")),
		Tokens:    repo,
		Doctor:    doctor,
		Logger:    logger,
		StartTime: startTime,
		Version:   config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-ctx.Done():
			quit()
		}
	}()

	if opts.headless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Store:  store,
			Logger: logging.WithComponent(logger, "tray"),
			OnOpenUI: func() error {
				logger.Info("control surface", "url", baseURL+"/state")
				return nil
			},
			OnQuit: quit,
		})
		go tray.Run(ctx)
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("failed to release playback resources", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func loadProduction(path string) (*timeline.Production, error) {
	if path == "" {
		show, err := timeline.Sample()
		if err != nil {
			return nil, fmt.Errorf("failed to load sample production: %w", err)
		}
		return show, nil
	}
	show, err := timeline.LoadProduction(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load production %s: %w", path, err)
	}
	return show, nil
}

func printBanner(port int, authToken string, show *timeline.Production) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  %-57s║\n", "CUEDECK AGENT v"+config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-28d║\n", port)
	fmt.Printf("║  Auth Token: %-45s║\n", authToken)
	fmt.Printf("║  Production: %-45s║\n", truncate(show.Name, 45))
	fmt.Printf("║  Moments:    %-45s║\n", fmt.Sprintf("%d (%s)", len(show.Moments), timeline.FormatDuration(show.TotalEstimatedDuration)))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

type configStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

func ensureAuthToken(ctx context.Context, repo configStore) (string, error) {
	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
