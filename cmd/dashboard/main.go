package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/config"
	"github.com/sreeram77/battery-pm/internal/dashboard"
	"github.com/sreeram77/battery-pm/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Log, "dashboard")

	// Both tables are read once; restart to pick up new pipeline output
	artifacts := artifact.NewStore(logger)
	engineered, err := artifacts.LoadTable(cfg.Paths.Features)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load engineered features")
	}
	predictions, err := artifacts.LoadTable(cfg.Paths.Predictions)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load predictions")
	}

	server := dashboard.NewServer(logger, dashboard.Config{
		Addr:       cfg.Dashboard.Addr(),
		TimeColumn: cfg.Cleaning.TimeColumn,
	}, engineered, predictions)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start dashboard")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during dashboard shutdown")
	}
}
