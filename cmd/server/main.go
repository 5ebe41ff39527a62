package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/compliance-advisor/internal/app"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/handlers"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	loader := config.NewLoader(*configFile)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	ctx := context.Background()

	// Only the log level is applied live; everything else needs a restart.
	loader.OnChange(func(next *config.Config) {
		appLogger.SetLevel(next.Log.Level)
		appLogger.Info(ctx, "Configuration reloaded", logger.String("log_level", next.Log.Level))
	}, func(err error) {
		appLogger.Error(ctx, "Ignoring invalid configuration change", err)
	})

	if cfg.Auth.Disabled {
		appLogger.Warn(ctx, "Authentication is disabled; every request runs with an admin session")
	}

	container, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, "Failed to initialize dependencies", err)
		os.Exit(1)
	}
	defer container.Close()

	router := http.NewRouter(
		cfg,
		appLogger,
		handlers.NewHealthHandler(container.Pingers(), appLogger),
		handlers.NewAdvisorHandler(container.Advisor, container.Reports, appLogger),
		container.Tracing.Tracer(),
		container.Metrics,
		http.WithRateLimits(container.QueryLimiter, container.ModelLimiter),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info(ctx, "Shutdown signal received", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			appLogger.Error(ctx, "HTTP server failed", err)
			container.Close()
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := router.Stop(shutdownCtx); err != nil {
		appLogger.Error(ctx, "Graceful shutdown failed", err)
	}
	appLogger.Info(ctx, "Server stopped")
}
