package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/probelight/qa-recorder/internal/models"
	"github.com/probelight/qa-recorder/internal/recorder"
	"github.com/probelight/qa-recorder/internal/server"
	"github.com/probelight/qa-recorder/internal/settings"
	"github.com/probelight/qa-recorder/internal/store"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	var settingsPath string

	root := &cobra.Command{
		Use:          "qa-recorder-agent",
		Short:        "Local agent persisting recorded user interactions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to settings.yaml (default: app data dir)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(settingsPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// appDataDir returns the platform-specific application data directory.
func appDataDir() (string, error) {
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDirectory, "Library", "Application Support", "QARecorder"), nil
	case "windows":
		return filepath.Join(homeDirectory, "AppData", "Roaming", "QARecorder"), nil
	default: // linux and others
		return filepath.Join(homeDirectory, ".local", "share", "QARecorder"), nil
	}
}

func serve(settingsPath string) error {
	applicationDirectory, err := appDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(applicationDirectory, 0o755); err != nil {
		return fmt.Errorf("failed to create application directory: %w", err)
	}
	if settingsPath == "" {
		settingsPath = filepath.Join(applicationDirectory, "settings.yaml")
	}

	cfg, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(applicationDirectory, "events.db")
	}
	if addr := os.Getenv("QA_RECORDER_ADDRESS"); addr != "" {
		cfg.Address = addr
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := recorder.New(recorder.Options{
		Sink:     db,
		Debounce: cfg.Recording.Debounce(),
	})
	sessionID := uuid.NewString()
	if err := engine.Start(recorder.Session{
		SessionID: sessionID,
		Mode:      cfg.Recording.Mode,
		Delay:     cfg.Recording.Delay(),
	}); err != nil {
		return err
	}
	defer engine.Stop()
	runID := engine.NewRun()
	log.Printf("recording session %s started (run %s, %s mode, frame script %s)",
		sessionID, runID, cfg.Recording.Mode, cfg.ScriptSrc)

	// Live toggles: mode, delay, and the manual-mode arm latch come from
	// the settings file while the agent runs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := settings.NewWatcher(settingsPath, func(updated *settings.Settings) {
		engine.SetMode(updated.Recording.Mode)
		engine.SetDelay(updated.Recording.Delay())
		if updated.Recording.ArmNext && updated.Recording.Mode == models.ModeManual {
			engine.Arm()
		}
		log.Printf("settings applied: mode=%s delay=%dms", updated.Recording.Mode, updated.Recording.DelayMs)
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("settings watcher stopped: %v", err)
		}
	}()

	srv := server.NewServer(db, engine, cfg.Address)
	return srv.Start()
}
