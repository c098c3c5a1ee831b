// Package main is the entry point of the billing task service: the REST
// API, the queue consumers and the scheduled sweeper all run in this one
// process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wanderleymp/finance-api-sub002/internal/config"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}

	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"sweeper_spec", cfg.Task.SweeperSpec,
		"cache_enabled", cfg.Redis.Addr != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		appLogger.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}
