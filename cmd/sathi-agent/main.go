package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shikkhasathi/offline/internal/api"
	"github.com/shikkhasathi/offline/internal/config"
	"github.com/shikkhasathi/offline/internal/download"
	"github.com/shikkhasathi/offline/internal/events"
	"github.com/shikkhasathi/offline/internal/gradebook"
	"github.com/shikkhasathi/offline/internal/quota"
	"github.com/shikkhasathi/offline/internal/scheduler"
	"github.com/shikkhasathi/offline/internal/storage"
	"github.com/shikkhasathi/offline/internal/syncq"
)

func main() {
	flags := pflag.NewFlagSet("sathi-agent", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to the YAML config file")
	exportPath := flags.String("export-gradebook", "", "Write the user's gradebook to this xlsx path and exit")
	exportUser := flags.String("user", "", "User id for gradebook export")
	flags.String("data_dir", "", "Data directory (overrides config)")
	flags.String("api.base_url", "", "Backend base URL (overrides config)")
	flags.String("api.token", "", "Bearer token (overrides config)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database)

	if *exportPath != "" {
		if *exportUser == "" {
			log.Fatalf("--export-gradebook requires --user")
		}
		if err := gradebook.Export(db, *exportUser, *exportPath); err != nil {
			log.Fatalf("Failed to export gradebook: %v", err)
		}
		slog.Info("gradebook exported", "user", *exportUser, "path", *exportPath)
		return
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.APITimeout())
	bus := events.NewBus()
	guard := quota.NewGuard(quota.DiskEstimator{Path: cfg.DataDir}, db)

	monitor := syncq.NewMonitor(client, cfg.ProbeInterval())
	syncMgr := syncq.NewManager(db, client, monitor, bus, syncq.Options{
		DeliveryTimeout: cfg.APITimeout(),
	})
	defer syncMgr.Close()

	dlMgr, err := download.NewManager(db, client, guard, bus, download.Options{
		Concurrency:     cfg.Download.Concurrency,
		RetryCap:        cfg.Download.RetryCap,
		PollInterval:    cfg.PollInterval(),
		PersistInterval: cfg.PersistInterval(),
		PartDir:         filepath.Join(cfg.DataDir, "parts"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize download manager: %v", err)
	}

	sched := scheduler.New(db, syncMgr, cfg.RetentionAge(),
		time.Duration(cfg.Retention.SweepEveryHours)*time.Hour,
		time.Duration(cfg.Sync.DrainIntervalMinutes)*time.Minute)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)
	defer monitor.Stop()
	dlMgr.Start()
	defer dlMgr.Stop()

	info := guard.Quota()
	slog.Info("offline core running",
		"backend", cfg.API.BaseURL,
		"storage_used", info.Used,
		"storage_available", info.Available)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
}
