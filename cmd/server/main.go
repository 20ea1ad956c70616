package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"schemamigration/api"
	"schemamigration/pkg/cleanup"
	"schemamigration/pkg/compare"
	"schemamigration/pkg/config"
	"schemamigration/pkg/migrate"
	"schemamigration/pkg/ops"
	"schemamigration/pkg/registry"
	"schemamigration/pkg/registry/httpclient"
	"schemamigration/pkg/schedule"
	"schemamigration/pkg/tasks"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	clients := make(map[string]registry.Client, len(cfg.Registries))
	for _, entry := range cfg.Registries {
		client, err := httpclient.New(httpclient.Config{
			Name:           entry.Name,
			BaseURL:        entry.BaseURL,
			RequestTimeout: time.Duration(cfg.RegistryTimeoutSeconds) * time.Second,
			RequestsPerSec: cfg.RegistryRequestsPerSec,
		})
		if err != nil {
			logger.Fatal("failed to create registry client", "registry", entry.Name, "error", err)
		}
		clients[entry.Name] = client
		logger.Info("registry configured", "name", entry.Name, "url", entry.BaseURL)
	}

	store := tasks.NewStore()
	runner := tasks.NewRunner(logger, cfg.PoolSize)

	comparer := compare.NewEngine()
	deps := ops.Deps{
		Clients:  clients,
		Comparer: comparer,
		Migrator: migrate.NewEngine(comparer),
		Cleaner:  cleanup.NewEngine(clients, runner),
	}

	reg := tasks.NewRegistry()
	ops.RegisterAll(reg, deps)
	service := tasks.NewService(logger, store, runner, reg)

	scheduler := schedule.NewScheduler(logger, service)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", "error", err)
	}

	server := api.NewServer(logger, service, scheduler, clients)
	router := server.SetupRouter()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "pool_size", service.PoolSize())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		logger.Error("scheduler stop failed", "error", err)
	}
	runner.Shutdown()
	logger.Info("shutdown complete")
}
