package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sreeram77/battery-pm/internal/api"
	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/config"
	"github.com/sreeram77/battery-pm/internal/logging"
	"github.com/sreeram77/battery-pm/internal/observability"
	"github.com/sreeram77/battery-pm/internal/predictor"
	"github.com/sreeram77/battery-pm/internal/storage"
	transportgrpc "github.com/sreeram77/battery-pm/internal/transport/grpc"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger := logging.New(cfg.Log, "api-server")

	// Metrics must be installed before the predictor creates its instruments
	metrics, err := observability.NewMetrics(true)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	store, err := newStorage(logger, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	svc, err := predictor.Load(logger, artifact.NewStore(logger), predictor.Paths{
		Regression: cfg.Paths.RegressionModel,
		Sequence:   cfg.Paths.SequenceModel,
	}, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load models")
	}

	server := api.NewServer(logger, api.Config{
		Addr:           cfg.Server.HTTP.Addr(),
		ReadTimeout:    cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:   cfg.Server.HTTP.WriteTimeout,
		MetricsHandler: metrics.Handler(),
	}, svc, store)

	// Create a context that listens for the interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start API server")
	}

	grpcDone := make(chan error, 1)
	if cfg.Server.GRPC.Enabled {
		grpcServer := transportgrpc.NewServer(logger, cfg.Server.GRPC.Port, svc)
		go func() {
			grpcDone <- grpcServer.Run(ctx)
		}()
	}

	// Wait for interrupt signal or a gRPC failure
	select {
	case <-ctx.Done():
	case err := <-grpcDone:
		if err != nil {
			logger.Error().Err(err).Msg("gRPC server failed")
		}
		stop()
	}
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during metrics shutdown")
	}

	logger.Info().Msg("Server stopped")
}

func newStorage(logger zerolog.Logger, cfg config.StorageConfig) (storage.PredictionStore, error) {
	switch cfg.Type {
	case "", "memory":
		return storage.NewMemoryStorage(), nil
	case "postgres":
		return storage.NewPostgresStorage(logger, cfg.Postgres.Storage())
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
