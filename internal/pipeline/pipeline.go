// Package pipeline runs the batch stages of the maintenance pipeline. Each
// stage loads its input artifact, transforms it and saves its output so
// stages can be run one at a time from the command line.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/plot"

	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/cleaning"
	"github.com/sreeram77/battery-pm/internal/config"
	"github.com/sreeram77/battery-pm/internal/features"
	"github.com/sreeram77/battery-pm/internal/model"
	"github.com/sreeram77/battery-pm/internal/plotting"
	"github.com/sreeram77/battery-pm/internal/predictor"
	"github.com/sreeram77/battery-pm/internal/table"
)

// Publisher uploads a directory of artifacts
type Publisher interface {
	PublishDir(ctx context.Context, dir string) ([]string, error)
}

// Runner executes pipeline stages against the configured artifact paths
type Runner struct {
	logger    zerolog.Logger
	cfg       *config.Config
	artifacts *artifact.Store
}

// NewRunner creates a new stage runner
func NewRunner(logger zerolog.Logger, cfg *config.Config) *Runner {
	return &Runner{
		logger:    logger,
		cfg:       cfg,
		artifacts: artifact.NewStore(logger),
	}
}

// Clean removes duplicates, fills missing values and aligns the raw
// telemetry to the configured interval
func (r *Runner) Clean() (*table.Table, error) {
	raw, err := r.artifacts.LoadTable(r.cfg.Paths.RawData)
	if err != nil {
		return nil, err
	}

	cleaner := cleaning.NewCleaner(r.logger)
	cleaned, err := cleaner.AlignToGrid(cleaner.Clean(raw), r.cfg.Cleaning.TimeColumn, r.cfg.Cleaning.Interval)
	if err != nil {
		return nil, fmt.Errorf("align telemetry: %w", err)
	}

	if err := r.artifacts.SaveTable(cleaned, r.cfg.Paths.CleanedData); err != nil {
		return nil, err
	}
	return cleaned, nil
}

// Features derives the engineered features from the cleaned telemetry
func (r *Runner) Features() (*table.Table, error) {
	cleaned, err := r.artifacts.LoadTable(r.cfg.Paths.CleanedData)
	if err != nil {
		return nil, err
	}

	engineered, err := features.NewEngineer(r.logger, r.cfg.Features.Options()).Apply(cleaned)
	if err != nil {
		return nil, fmt.Errorf("engineer features: %w", err)
	}

	if err := r.artifacts.SaveTable(engineered, r.cfg.Paths.Features); err != nil {
		return nil, err
	}
	return engineered, nil
}

// Train fits both regressors on the engineered features and saves the
// models and their evaluation report
func (r *Runner) Train() (model.Report, error) {
	engineered, err := r.artifacts.LoadTable(r.cfg.Paths.Features)
	if err != nil {
		return model.Report{}, err
	}

	result, err := model.NewTrainer(r.logger, r.cfg.Training.TrainConfig()).TrainTable(engineered)
	if err != nil {
		return model.Report{}, fmt.Errorf("train models: %w", err)
	}

	if err := r.artifacts.SaveJSON(result.Forest, r.cfg.Paths.RegressionModel); err != nil {
		return model.Report{}, err
	}
	r.logger.Info().Str("path", r.cfg.Paths.RegressionModel).Msg("Regression model saved")

	if err := r.artifacts.SaveJSON(result.Sequence, r.cfg.Paths.SequenceModel); err != nil {
		return model.Report{}, err
	}
	r.logger.Info().Str("path", r.cfg.Paths.SequenceModel).Msg("Sequence model saved")

	if err := r.artifacts.SaveJSON(result.Report, r.cfg.Paths.Metrics); err != nil {
		return model.Report{}, err
	}
	return result.Report, nil
}

// Predict scores every engineered row with the saved models and writes the
// predictions table read by the dashboard
func (r *Runner) Predict(ctx context.Context) (*table.Table, error) {
	engineered, err := r.artifacts.LoadTable(r.cfg.Paths.Features)
	if err != nil {
		return nil, err
	}

	svc, err := predictor.Load(r.logger, r.artifacts, r.modelPaths(), nil)
	if err != nil {
		return nil, err
	}

	predictions, err := svc.PredictTable(ctx, engineered)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	if err := r.artifacts.SaveTable(predictions, r.cfg.Paths.Predictions); err != nil {
		return nil, err
	}
	return predictions, nil
}

// EDA renders the exploratory charts of the cleaned telemetry and returns
// the files written
func (r *Runner) EDA() ([]string, error) {
	cleaned, err := r.artifacts.LoadTable(r.cfg.Paths.CleanedData)
	if err != nil {
		return nil, err
	}

	charts := []struct {
		file  string
		build func() (*plot.Plot, error)
	}{
		{plotting.SOCOverTimeFile, func() (*plot.Plot, error) {
			return plotting.SOCOverTime(cleaned, r.cfg.Cleaning.TimeColumn)
		}},
		{plotting.TemperatureDistributionFile, func() (*plot.Plot, error) {
			return plotting.TemperatureDistribution(cleaned)
		}},
		{plotting.CorrelationHeatmapFile, func() (*plot.Plot, error) {
			return plotting.CorrelationHeatmap(cleaned)
		}},
	}

	written := make([]string, 0, len(charts))
	for _, chart := range charts {
		p, err := chart.build()
		if err != nil {
			return written, fmt.Errorf("%s: %w", chart.file, err)
		}
		path := filepath.Join(r.cfg.Paths.EDADir, chart.file)
		if err := plotting.SavePNG(p, path); err != nil {
			return written, err
		}
		r.logger.Info().Str("path", path).Msg("Chart saved")
		written = append(written, path)
	}
	return written, nil
}

// Export writes one of the pipeline tables as a spreadsheet and returns its path.
// name is one of raw, cleaned, features or predictions.
func (r *Runner) Export(name string) (string, error) {
	src, ok := r.tablePaths()[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown table %q", name)
	}

	t, err := r.artifacts.LoadTable(src)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(r.cfg.Paths.ExportDir, base+".xlsx")
	if err := r.artifacts.ExportXLSX(t, dst, name); err != nil {
		return "", err
	}
	return dst, nil
}

// Publish uploads the trained model directory
func (r *Runner) Publish(ctx context.Context, publisher Publisher) ([]string, error) {
	keys, err := publisher.PublishDir(ctx, r.cfg.Paths.ModelsDir)
	if err != nil {
		return keys, fmt.Errorf("publish %s: %w", r.cfg.Paths.ModelsDir, err)
	}
	r.logger.Info().Int("objects", len(keys)).Msg("Artifacts published")
	return keys, nil
}

// Run executes every batch stage in order
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.Clean(); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	if _, err := r.Features(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if _, err := r.Train(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if _, err := r.Predict(ctx); err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	if _, err := r.EDA(); err != nil {
		return fmt.Errorf("eda: %w", err)
	}
	return nil
}

func (r *Runner) modelPaths() predictor.Paths {
	return predictor.Paths{
		Regression: r.cfg.Paths.RegressionModel,
		Sequence:   r.cfg.Paths.SequenceModel,
	}
}

func (r *Runner) tablePaths() map[string]string {
	return map[string]string{
		"raw":         r.cfg.Paths.RawData,
		"cleaned":     r.cfg.Paths.CleanedData,
		"features":    r.cfg.Paths.Features,
		"predictions": r.cfg.Paths.Predictions,
	}
}
