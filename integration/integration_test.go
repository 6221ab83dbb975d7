package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sreeram77/battery-pm/internal/api"
	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/config"
	"github.com/sreeram77/battery-pm/internal/dashboard"
	"github.com/sreeram77/battery-pm/internal/pipeline"
	"github.com/sreeram77/battery-pm/internal/predictor"
	"github.com/sreeram77/battery-pm/internal/storage"
	"github.com/sreeram77/battery-pm/internal/table"
	transportgrpc "github.com/sreeram77/battery-pm/internal/transport/grpc"
)

func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	logger := zerolog.Nop()
	dir := t.TempDir()

	// Load defaults, then point every artifact into the temp directory
	t.Chdir(dir)
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Paths = config.PathsConfig{
		RawData:         filepath.Join(dir, "data", "battery_telemetry.csv"),
		CleanedData:     filepath.Join(dir, "processed_data", "cleaned_telemetry.csv"),
		Features:        filepath.Join(dir, "processed_data", "engineered_features.csv"),
		Predictions:     filepath.Join(dir, "processed_data", "rul_predictions.csv"),
		ModelsDir:       filepath.Join(dir, "trained_models"),
		RegressionModel: filepath.Join(dir, "trained_models", "regression_model.json"),
		SequenceModel:   filepath.Join(dir, "trained_models", "sequence_model.json"),
		Metrics:         filepath.Join(dir, "trained_models", "metrics.json"),
		EDADir:          filepath.Join(dir, "eda_plots"),
		ExportDir:       filepath.Join(dir, "exports"),
	}
	cfg.Training.Forest.NEstimators = 20
	writeTelemetry(t, cfg.Paths.RawData, 180)

	// Batch pipeline
	runner := pipeline.NewRunner(logger, cfg)
	require.NoError(t, runner.Run(context.Background()))

	artifacts := artifact.NewStore(logger)
	engineered, err := artifacts.LoadTable(cfg.Paths.Features)
	require.NoError(t, err)
	predictions, err := artifacts.LoadTable(cfg.Paths.Predictions)
	require.NoError(t, err)

	// Serving
	store := storage.NewMemoryStorage()
	defer store.Close()

	svc, err := predictor.Load(logger, artifacts, predictor.Paths{
		Regression: cfg.Paths.RegressionModel,
		Sequence:   cfg.Paths.SequenceModel,
	}, store)
	require.NoError(t, err)

	telemetry := telemetryRow(t, engineered, svc.Features(), 50)

	httpServer := httptest.NewServer(api.NewServer(logger, api.Config{}, svc, store).Handler())
	defer httpServer.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcServer := transportgrpc.NewServer(logger, 0, svc)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	var httpRUL float64

	t.Run("API Health Check", func(t *testing.T) {
		resp, err := http.Get(httpServer.URL + "/health")
		require.NoError(t, err, "Failed to call health endpoint")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, "Unexpected status code")

		var result map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "ok", result["status"], "Unexpected status in response")
	})

	t.Run("Predict over HTTP", func(t *testing.T) {
		body, err := json.Marshal(map[string]any{"telemetry": telemetry})
		require.NoError(t, err)

		resp, err := http.Post(httpServer.URL+"/predict", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result api.PredictResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.InDelta(t, (result.Details.Regression+result.Details.Sequence)/2, result.RUL, 1e-9)
		assert.False(t, math.IsNaN(result.RUL))
		httpRUL = result.RUL
	})

	t.Run("Predict without telemetry", func(t *testing.T) {
		resp, err := http.Post(httpServer.URL+"/predict", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var result map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "No telemetry data provided", result["error"])
	})

	t.Run("Predict over gRPC", func(t *testing.T) {
		conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.NoError(t, err, "Failed to connect to gRPC server")
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		prediction, err := transportgrpc.NewPredictionClient(conn).PredictTelemetry(ctx, telemetry)
		require.NoError(t, err)
		assert.InDelta(t, httpRUL, prediction.RUL, 1e-9, "both transports serve the same models")
	})

	t.Run("Stored predictions", func(t *testing.T) {
		resp, err := http.Get(httpServer.URL + "/api/v1/predictions/latest?n=5")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stored []api.Prediction
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
		assert.Len(t, stored, 2, "one prediction per successful request")
	})

	t.Run("Dashboard", func(t *testing.T) {
		dash := httptest.NewServer(dashboard.NewServer(logger, dashboard.Config{}, engineered, predictions).Handler())
		defer dash.Close()

		for _, path := range []string{"/", "/charts/soc.png", "/charts/rul.png", "/charts/feature.png?name=voltage"} {
			resp, err := http.Get(dash.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})
}

// telemetryRow returns the named feature values of row i
func telemetryRow(t *testing.T, tbl *table.Table, names []string, i int) map[string]float64 {
	t.Helper()
	row := make(map[string]float64, len(names))
	for _, name := range names {
		values, err := tbl.Numeric(name)
		require.NoError(t, err)
		row[name] = values[i]
	}
	return row
}

// writeTelemetry writes n minutes of discharging telemetry, two samples a minute
func writeTelemetry(t *testing.T, path string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	var b strings.Builder
	b.WriteString("timestamp,state_of_charge,current,voltage,temperature,remaining_useful_life\n")
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 2*n; i++ {
		soc := 100 - 0.25*float64(i)
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.3f,%.2f,%.1f\n",
			start.Add(time.Duration(i)*30*time.Second).Format("2006-01-02 15:04:05"),
			soc, -8-float64(i%5), 3.5+soc/400, 24+4*math.Sin(float64(i)/12), 3*soc)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}
