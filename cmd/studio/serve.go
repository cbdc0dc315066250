package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelinecraft/studio/internal/api"
	"github.com/timelinecraft/studio/internal/config"
	"github.com/timelinecraft/studio/internal/events"
	"github.com/timelinecraft/studio/internal/export"
	"github.com/timelinecraft/studio/internal/logging"
	"github.com/timelinecraft/studio/internal/playback"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/ui"
)

const (
	deviceIDKey     = "device_id"
	shutdownTimeout = 30 * time.Second
)

var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveHeadless)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray")
	rootCmd.AddCommand(serveCmd)
}

func runServe(headless bool) error {
	startTime := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger, logCloser, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logCloser.Close()
	logger.Info("starting timeline craft studio", "version", config.Version, "data_dir", cfg.DataDir())

	database, repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(cfg.Port(), authToken, deviceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refs, err := newRefStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	images, imagesCloser := newImageGenerator(ctx, cfg, logger)
	defer imagesCloser.Close()

	hub := events.NewHub(logging.WithComponent(logger, "events"))
	go hub.Run(ctx)

	manager := project.NewManager(project.Deps{
		Repo:            repo,
		Images:          images,
		Compiler:        newCompiler(cfg, logger),
		Publisher:       hub,
		Release:         refs.Release,
		GenerateTimeout: cfg.GenerateTimeout(),
		CompileTimeout:  cfg.CompileTimeout(),
		Logger:          logging.WithComponent(logger, "project"),
	})

	background := api.NewBackground(ctx, logger)
	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Projects:   manager,
		Repository: repo,
		References: refs,
		Exporter:   export.NewExporter(logging.WithComponent(logger, "export")),
		Playback:   playback.NewServer(logging.WithComponent(logger, "playback")),
		Events:     hub,
		Background: background,
		StyleHint:  cfg.StyleHint(),
		Logger:     logger,
		StartTime:  startTime,
		DeviceID:   deviceID,
		Version:    config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})

	if headless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Projects: manager,
			Spawn:    background.Go,
			Logger:   logging.WithComponent(logger, "tray"),
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-quitCh:
		logger.Info("quit requested")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	cancel()

	logger.Info("shutdown complete")
	return nil
}

func printBanner(port int, authToken, deviceID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  %-57s║\n", "TIMELINE CRAFT STUDIO v"+config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", port)
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func ensureDeviceID(repo project.Repository) (string, error) {
	return ensureSecret(repo, deviceIDKey, 16)
}

func ensureAuthToken(repo project.Repository) (string, error) {
	return ensureSecret(repo, api.AuthTokenKey, 32)
}

// ensureSecret returns the stored value for key, creating a random hex
// value of n bytes on first run.
func ensureSecret(repo project.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
