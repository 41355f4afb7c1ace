package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	httpapi "github.com/i474232898/mesonet-data-aggregation/internal/api/http"
	"github.com/i474232898/mesonet-data-aggregation/internal/config"
	"github.com/i474232898/mesonet-data-aggregation/internal/logging"
	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/scheduler"
	"github.com/i474232898/mesonet-data-aggregation/internal/store"
	"github.com/i474232898/mesonet-data-aggregation/internal/weather"
)

const appName = "mesonet-server"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg, appName)
	slog.SetDefault(log)

	token, err := cfg.ResolveToken("")
	if err != nil {
		log.Error("no api token", "error", err)
		os.Exit(1)
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client, err := mesonet.NewClient(token,
		mesonet.WithBaseURL(cfg.BaseURL),
		mesonet.WithHTTPClient(httpClient),
		mesonet.WithLogger(log),
		mesonet.WithCircuitBreaker("mesonet"),
	)
	if err != nil {
		log.Error("failed to create mesonet client", "error", err)
		os.Exit(1)
	}

	snapshots, closeStore, err := openStore(cfg)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Core service orchestrating the client and store.
	service := weather.NewService(snapshots, client, log)

	// Scheduler that periodically fetches and stores latest observations.
	sched := scheduler.New(cfg.PollStations, cfg.PollVars, cfg.FetchInterval, service, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, log)

	go func() {
		log.Info("listening", "port", cfg.Port, "env", cfg.AppEnv, "store", cfg.StoreBackend)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}

func openStore(cfg *config.AppConfig) (weather.Store, func(), error) {
	if cfg.StoreBackend == "sqlite" {
		s, err := store.OpenSQLite(cfg.SQLitePath, cfg.StoreMaxHistory, cfg.StoreMaxAge)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge), func() {}, nil
}
