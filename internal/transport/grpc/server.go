package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server represents the gRPC server
type Server struct {
	logger     zerolog.Logger
	addr       string
	grpcServer *grpc.Server
}

// NewServer creates a new gRPC server exposing the prediction service on
// port
func NewServer(logger zerolog.Logger, port int, predictor Predictor) *Server {
	// Create gRPC server with options
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(10 * 1024 * 1024), // 10MB
		grpc.MaxSendMsgSize(10 * 1024 * 1024), // 10MB
		grpc.UnaryInterceptor(loggingInterceptor(logger)),
	}

	grpcServer := grpc.NewServer(opts...)

	RegisterPredictionServiceServer(grpcServer, NewPredictionService(logger, predictor))

	// Enable reflection for gRPC CLI tools like grpcurl
	reflection.Register(grpcServer)

	return &Server{
		logger:     logger,
		addr:       fmt.Sprintf(":%d", port),
		grpcServer: grpcServer,
	}
}

// Start listens on the configured port and serves until stopped
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().
		Str("address", lis.Addr().String()).
		Msg("Starting gRPC server")

	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %v", err)
	}

	return nil
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Shutting down gRPC server")

	// Graceful stop
	s.grpcServer.GracefulStop()

	s.logger.Info().Msg("gRPC server stopped")
	return nil
}

// Run starts the server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Channel to listen for errors from server goroutine
	serverErrors := make(chan error, 1)

	// Start the gRPC server in a goroutine
	go func() {
		if err := s.Start(); err != nil {
			serverErrors <- err
		}
	}()

	// Listen for context cancellation or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %v", err)
	case <-ctx.Done():
		// Context was cancelled, perform graceful shutdown
		return s.Stop()
	}
}

// loggingInterceptor logs every unary call
func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("latency", time.Since(start)).
			Msg("RPC processed")

		return resp, err
	}
}
