package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/turtacn/compliance-advisor/internal/app"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/queue"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	noSchedule := flag.Bool("no-schedule", false, "process queued tasks without registering cron entries")
	flag.Parse()

	loader := config.NewLoader(*configFile)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Redis.Enabled || !cfg.Queue.Enabled {
		log.Fatalf("The worker needs redis.enabled and queue.enabled")
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	ctx := context.Background()

	loader.OnChange(func(next *config.Config) {
		appLogger.SetLevel(next.Log.Level)
	}, func(err error) {
		appLogger.Error(ctx, "Ignoring invalid configuration change", err)
	})

	container, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, "Failed to initialize dependencies", err)
		os.Exit(1)
	}
	defer container.Close()

	if !*noSchedule {
		scheduler, err := queue.NewScheduler(&cfg.Redis, cfg.Sync, appLogger)
		if err != nil {
			appLogger.Error(ctx, "Failed to create scheduler", err)
			container.Close()
			os.Exit(1)
		}
		if err := scheduler.Start(); err != nil {
			appLogger.Error(ctx, "Failed to start scheduler", err)
			container.Close()
			os.Exit(1)
		}
		defer scheduler.Shutdown()
	}

	// Run returns after SIGINT or SIGTERM once in-flight tasks finish.
	server := queue.NewServer(&cfg.Redis, cfg.Queue, container.TaskRunner(), appLogger)
	if err := server.Run(); err != nil {
		appLogger.Error(ctx, "Worker stopped with error", err)
		container.Close()
		os.Exit(1)
	}
	appLogger.Info(ctx, "Worker stopped", logger.String("service", cfg.Tracing.ServiceName))
}
