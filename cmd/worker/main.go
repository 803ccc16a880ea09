package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/billfeed/internal/app"
	"github.com/dvloznov/billfeed/internal/config"
	"github.com/dvloznov/billfeed/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "billfeed.yaml", "Path to configuration file")
	)
	flag.Parse()

	log := logger.New()
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("Config not loaded, using defaults")
		cfg = config.Default()
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble pipeline")
	}
	defer a.Close()

	log.Info().Msg("Starting worker service")

	a.Engine.StartSweeper(ctx, time.Duration(cfg.Pipeline.DedupWindow))

	if err := a.Queue.Start(ctx, a.Pipeline.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	if a.Syncer != nil {
		go a.Syncer.Run(ctx, time.Minute)
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
