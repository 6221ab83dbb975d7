package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sreeram77/battery-pm/internal/predictor"
	"github.com/sreeram77/battery-pm/internal/storage"
)

// Predictor serves a single RUL prediction
type Predictor interface {
	Predict(ctx context.Context, telemetry map[string]float64) (predictor.Prediction, error)
}

// Config holds HTTP server settings
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MetricsHandler is mounted at /metrics when set
	MetricsHandler http.Handler
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	logger     zerolog.Logger
	httpServer *http.Server
	predictor  Predictor
	storage    storage.PredictionStore
	metrics    http.Handler
}

// NewServer creates a new API server instance
func NewServer(logger zerolog.Logger, cfg Config, predictor Predictor, storage storage.PredictionStore) *Server {
	srv := &Server{
		logger:    logger,
		predictor: predictor,
		storage:   storage,
		metrics:   cfg.MetricsHandler,
	}

	// Configure Gin
	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv.router = gin.New()
	srv.router.Use(
		gin.Recovery(),
		RequestLogger(logger),
	)

	// Register routes
	srv.registerRoutes()

	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}

	// Create HTTP server
	srv.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting API server")

	// Start server in a separate goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Give the listener a moment to fail on a bad address
	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server...")

	// Create a deadline to wait for
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	// Shutdown the server
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during server shutdown")
		return err
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// Prediction endpoint
	s.router.POST("/predict", s.predict)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		predictions := v1.Group("/predictions")
		{
			predictions.GET("", s.listPredictions)
			predictions.GET("/latest", s.latestPredictions)
		}
	}

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": "1.0.0",
	})
}

// RequestLogger is a middleware that logs HTTP requests
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)

		statusCode := c.Writer.Status()
		errMsg := c.Errors.ByType(gin.ErrorTypePrivate).String()

		event := logger.Info()
		if statusCode >= 400 {
			event = logger.Error().Str("error", errMsg)
		}

		event = event.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Str("ip", c.ClientIP()).
			Str("user-agent", c.Request.UserAgent()).
			Dur("latency", latency)

		if query != "" {
			event = event.Str("query", query)
		}

		event.Msg("Request processed")
	}
}
