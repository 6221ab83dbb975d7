// Package model trains and evaluates the remaining-useful-life regressors.
package model

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sreeram77/battery-pm/internal/metrics"
	"github.com/sreeram77/battery-pm/internal/table"
)

// Regressor maps a feature vector, ordered as FeatureNames, to a prediction
type Regressor interface {
	Predict(x []float64) float64
	FeatureNames() []string
}

// TrainConfig holds the training parameters
type TrainConfig struct {
	Target   string
	TestSize float64
	Seed     uint64
	Forest   ForestConfig
	Sequence SequenceConfig
}

// DefaultTrainConfig returns the default training parameters
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Target:   DefaultTarget,
		TestSize: 0.2,
		Seed:     42,
		Forest: ForestConfig{
			NEstimators:    100,
			MaxDepth:       12,
			MinSamplesLeaf: 1,
		},
		Sequence: SequenceConfig{
			Units:          50,
			SpectralRadius: 0.9,
			InputScale:     0.5,
			Ridge:          1e-3,
		},
	}
}

// Report holds the held-out evaluation of both regressors
type Report struct {
	Regression metrics.Result `json:"regression_model"`
	Sequence   metrics.Result `json:"lstm_model"`
	TrainRows  int            `json:"train_rows"`
	TestRows   int            `json:"test_rows"`
	Features   []string       `json:"features"`
}

// Result is the outcome of a training run
type Result struct {
	Forest   *Forest
	Sequence *Sequence
	Report   Report
}

// Trainer fits both regressors on an engineered features table
type Trainer struct {
	logger zerolog.Logger
	cfg    TrainConfig
}

// NewTrainer creates a new trainer
func NewTrainer(logger zerolog.Logger, cfg TrainConfig) *Trainer {
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	return &Trainer{
		logger: logger.With().Str("component", "trainer").Logger(),
		cfg:    cfg,
	}
}

// TrainTable builds a dataset from t and trains on it
func (tr *Trainer) TrainTable(t *table.Table) (Result, error) {
	ds, dropped, err := BuildDataset(t, tr.cfg.Target)
	if err != nil {
		return Result{}, err
	}
	if dropped > 0 {
		tr.logger.Info().
			Int("dropped", dropped).
			Int("remaining", ds.Len()).
			Msg("Dropped rows with missing values")
	}
	return tr.Train(ds)
}

// Train splits ds, fits both regressors on the training partition and
// evaluates them on the test partition
func (tr *Trainer) Train(ds Dataset) (Result, error) {
	trainIdx, testIdx, err := TrainTestSplit(ds.Len(), tr.cfg.TestSize, tr.cfg.Seed)
	if err != nil {
		return Result{}, err
	}
	train, test := ds.Subset(trainIdx), ds.Subset(testIdx)

	tr.logger.Info().
		Int("train_rows", train.Len()).
		Int("test_rows", test.Len()).
		Strs("features", ds.Features).
		Msg("Training models")

	forestCfg := tr.cfg.Forest
	forestCfg.Seed = tr.cfg.Seed
	forest, err := FitForest(train, forestCfg)
	if err != nil {
		return Result{}, fmt.Errorf("fit regression model: %w", err)
	}

	seqCfg := tr.cfg.Sequence
	seqCfg.Seed = tr.cfg.Seed
	seq, err := FitSequence(train, seqCfg)
	if err != nil {
		return Result{}, fmt.Errorf("fit sequence model: %w", err)
	}

	regScore, err := Evaluate(forest, test)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate regression model: %w", err)
	}
	seqScore, err := Evaluate(seq, test)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate sequence model: %w", err)
	}

	tr.logger.Info().
		Float64("mae", regScore.MAE).
		Float64("r2", regScore.R2).
		Msg("Regression model evaluated")
	tr.logger.Info().
		Float64("mae", seqScore.MAE).
		Float64("r2", seqScore.R2).
		Msg("Sequence model evaluated")

	return Result{
		Forest:   forest,
		Sequence: seq,
		Report: Report{
			Regression: regScore,
			Sequence:   seqScore,
			TrainRows:  train.Len(),
			TestRows:   test.Len(),
			Features:   ds.Features,
		},
	}, nil
}

// Evaluate scores r on ds
func Evaluate(r Regressor, ds Dataset) (metrics.Result, error) {
	pred := make([]float64, ds.Len())
	for i, x := range ds.X {
		pred[i] = r.Predict(x)
	}
	return metrics.Compute(ds.Y, pred)
}
