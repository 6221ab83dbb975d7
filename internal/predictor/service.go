// Package predictor combines the trained regressors into a single
// remaining-useful-life estimate.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/model"
	"github.com/sreeram77/battery-pm/internal/storage"
	"github.com/sreeram77/battery-pm/internal/table"
)

const (
	ColRUL        = "rul"
	ColRegression = "regression_model_prediction"
	ColSequence   = "lstm_model_prediction"
	ColTimestamp  = "timestamp"
)

var (
	// ErrNoTelemetry is returned when a request carries no telemetry values
	ErrNoTelemetry = errors.New("no telemetry data provided")
	// ErrMissingFeature is returned when a model feature is absent from the telemetry
	ErrMissingFeature = errors.New("missing feature")
)

// Prediction is a combined RUL estimate with its per-model details
type Prediction struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RUL        float64   `json:"rul_prediction"`
	Regression float64   `json:"regression_model_prediction"`
	Sequence   float64   `json:"lstm_model_prediction"`
}

// Paths locates the trained model artifacts
type Paths struct {
	Regression string
	Sequence   string
}

// Service serves predictions from an explicitly loaded pair of models
type Service struct {
	logger     zerolog.Logger
	regression model.Regressor
	sequence   model.Regressor
	store      storage.PredictionStore
	now        func() time.Time

	metrics serviceMetrics
}

// serviceMetrics holds all metrics for the service
type serviceMetrics struct {
	predictions metric.Int64Counter
	errors      metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewService creates a new prediction service. store may be nil.
func NewService(logger zerolog.Logger, regression, sequence model.Regressor, store storage.PredictionStore) *Service {
	meter := otel.GetMeterProvider().Meter("github.com/sreeram77/battery-pm/predictor")
	predictions, _ := meter.Int64Counter(
		"predictor_predictions_total",
		metric.WithDescription("Total number of RUL predictions served"),
	)
	errs, _ := meter.Int64Counter(
		"predictor_errors_total",
		metric.WithDescription("Total number of failed prediction requests"),
	)
	latency, _ := meter.Float64Histogram(
		"predictor_latency_seconds",
		metric.WithDescription("Time taken to compute a prediction"),
		metric.WithUnit("s"),
	)

	return &Service{
		logger:     logger.With().Str("component", "predictor").Logger(),
		regression: regression,
		sequence:   sequence,
		store:      store,
		now:        time.Now,
		metrics: serviceMetrics{
			predictions: predictions,
			errors:      errs,
			latency:     latency,
		},
	}
}

// Load reads both model artifacts and returns a ready service
func Load(logger zerolog.Logger, artifacts *artifact.Store, paths Paths, store storage.PredictionStore) (*Service, error) {
	regression, err := model.LoadForest(artifacts, paths.Regression)
	if err != nil {
		return nil, fmt.Errorf("load regression model: %w", err)
	}
	sequence, err := model.LoadSequence(artifacts, paths.Sequence)
	if err != nil {
		return nil, fmt.Errorf("load sequence model: %w", err)
	}

	logger.Info().
		Str("regression_model", paths.Regression).
		Str("sequence_model", paths.Sequence).
		Int("features", len(regression.FeatureNames())).
		Msg("Models loaded")

	return NewService(logger, regression, sequence, store), nil
}

// Features returns the feature names the regression model expects
func (s *Service) Features() []string {
	return s.regression.FeatureNames()
}

// Predict estimates the remaining useful life for one telemetry record
func (s *Service) Predict(ctx context.Context, telemetry map[string]float64) (Prediction, error) {
	start := time.Now()

	if len(telemetry) == 0 {
		s.recordError(ctx, "no_telemetry")
		return Prediction{}, ErrNoTelemetry
	}

	regX, err := vector(s.regression.FeatureNames(), telemetry)
	if err != nil {
		s.recordError(ctx, "missing_feature")
		return Prediction{}, err
	}
	seqX, err := vector(s.sequence.FeatureNames(), telemetry)
	if err != nil {
		s.recordError(ctx, "missing_feature")
		return Prediction{}, err
	}

	reg := s.regression.Predict(regX)
	seq := s.sequence.Predict(seqX)
	p := Prediction{
		ID:         uuid.New().String(),
		Timestamp:  s.now().UTC(),
		RUL:        (reg + seq) / 2,
		Regression: reg,
		Sequence:   seq,
	}

	if s.store != nil {
		err := s.store.Store(ctx, storage.PredictionRecord{
			ID:                   p.ID,
			Timestamp:            p.Timestamp,
			RUL:                  p.RUL,
			RegressionPrediction: p.Regression,
			SequencePrediction:   p.Sequence,
			Telemetry:            telemetry,
		})
		if err != nil {
			s.recordError(ctx, "store")
			return Prediction{}, fmt.Errorf("store prediction: %w", err)
		}
	}

	s.metrics.predictions.Add(ctx, 1)
	s.metrics.latency.Record(ctx, time.Since(start).Seconds())

	s.logger.Debug().
		Str("id", p.ID).
		Float64("rul", p.RUL).
		Msg("Prediction served")

	return p, nil
}

// PredictTable predicts every complete row of an engineered features table.
// Rows missing a model feature are skipped. The result has the columns
// timestamp (when t has one), rul, regression_model_prediction and
// lstm_model_prediction.
func (s *Service) PredictTable(ctx context.Context, t *table.Table) (*table.Table, error) {
	regCols, err := columns(t, s.regression.FeatureNames())
	if err != nil {
		return nil, err
	}
	seqCols, err := columns(t, s.sequence.FeatureNames())
	if err != nil {
		return nil, err
	}

	var keep []int
	var rul, reg, seq []float64
	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		regX, ok := row(regCols, i)
		if !ok {
			continue
		}
		seqX, ok := row(seqCols, i)
		if !ok {
			continue
		}
		r, q := s.regression.Predict(regX), s.sequence.Predict(seqX)
		keep = append(keep, i)
		reg = append(reg, r)
		seq = append(seq, q)
		rul = append(rul, (r+q)/2)
	}

	if skipped := t.Len() - len(keep); skipped > 0 {
		s.logger.Info().
			Int("skipped", skipped).
			Int("predicted", len(keep)).
			Msg("Skipped rows with missing features")
	}

	var out []*table.Column
	if c, err := t.Column(ColTimestamp); err == nil {
		out = append(out, table.MustNew(c).Take(keep).Columns()[0])
	}
	out = append(out,
		table.NewNumeric(ColRUL, rul),
		table.NewNumeric(ColRegression, reg),
		table.NewNumeric(ColSequence, seq),
	)
	return table.New(out...)
}

func (s *Service) recordError(ctx context.Context, reason string) {
	s.metrics.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func vector(names []string, telemetry map[string]float64) ([]float64, error) {
	x := make([]float64, len(names))
	for i, name := range names {
		v, ok := telemetry[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		x[i] = v
	}
	return x, nil
}

func columns(t *table.Table, names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		v, err := t.Numeric(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		cols[i] = v
	}
	return cols, nil
}

func row(cols [][]float64, i int) ([]float64, bool) {
	x := make([]float64, len(cols))
	for j, col := range cols {
		if math.IsNaN(col[i]) {
			return nil, false
		}
		x[j] = col[i]
	}
	return x, true
}
