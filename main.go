package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inbox_server/config"
	"inbox_server/internal/bootstrap"
	"inbox_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Initialize logger early
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "inbox-server",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "Run mode: api, scheduler, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	runAPI := *mode == "api" || *mode == "all"
	runScheduler := (*mode == "scheduler" || *mode == "all") && cfg.SchedulerEnabled

	var scheduler interface{ Start(); Stop() }
	if runScheduler {
		s := bootstrap.NewScheduler(cfg, deps)
		s.Start()
		scheduler = s
	}

	if !runAPI {
		if scheduler == nil {
			logger.Fatal("Nothing to run: mode=%s, scheduler enabled=%v", *mode, cfg.SchedulerEnabled)
		}
		waitForSignal()
		scheduler.Stop()
		logger.Info("Scheduler stopped")
		return
	}

	app := bootstrap.NewAPI(cfg, deps)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("Starting API server on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Server failed: %v", err)
		}
	}()

	waitForSignal()
	logger.Info("Shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}

	done := make(chan error, 1)
	go func() {
		done <- app.Shutdown()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		} else {
			logger.Info("Server stopped")
		}
	case <-time.After(shutdownTimeout):
		logger.Error("Shutdown timed out after %s", shutdownTimeout)
	}
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
