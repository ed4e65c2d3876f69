package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/minx-network/distribution/config"
	"github.com/minx-network/distribution/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config.json")
	port := flag.Int("port", 0, "HTTP port (0 = use config.json)")
	storageDir := flag.String("storage", "", "State database directory (overrides config.json)")
	memory := flag.Bool("memory", false, "Keep all state in memory")
	flag.Parse()

	// Load config first (primary source of truth)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Crit("Failed to load config", "path", *configPath, "err", err)
	}

	if *port != 0 {
		cfg.Port = *port
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}

	// Allow environment variable overrides
	if envPort := os.Getenv("PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			cfg.Port = p
		}
	}
	if envDir := os.Getenv("STORAGE_DIR"); envDir != "" {
		cfg.StorageDir = envDir
	}
	if envDSN := os.Getenv("JOURNAL_DSN"); envDSN != "" {
		cfg.Journal.DSN = envDSN
	}
	if *memory {
		cfg.StorageDir = ""
	}

	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(ctx, cfg, log.Root())
	if err != nil {
		log.Crit("Failed to start distribution service", "err", err)
	}
	defer svc.Close()

	log.Info("Starting distribution service", "port", cfg.Port, "storage", cfg.StorageDir, "manualClock", cfg.Clock.Manual)
	if err := svc.Run(ctx); err != nil {
		log.Error("Service stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("Service stopped")
}

func setupLogging(cfg config.LogConfig) {
	lvl, err := log.LvlFromString(cfg.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	var h slog.Handler
	if cfg.Format == "json" {
		h = log.JSONHandlerWithLevel(os.Stderr, lvl)
	} else {
		h = log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)
	}
	log.SetDefault(log.NewLogger(h))
}
