package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/config"
	"github.com/sreeram77/battery-pm/internal/logging"
	"github.com/sreeram77/battery-pm/internal/pipeline"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
	runner     *pipeline.Runner
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pipeline",
		Short: "EV battery predictive maintenance pipeline",
		Long: `Runs the batch stages of the battery maintenance pipeline.

Each stage reads the artifact written by the previous one, so stages can be
run individually or all at once with "pipeline run".

Examples:
  pipeline clean
  pipeline train --config configs/config.yaml
  pipeline export --table predictions`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.Log, "pipeline").With().Str("stage", cmd.Name()).Logger()
			a.runner = pipeline.NewRunner(a.logger, cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "clean",
			Short: "Remove duplicates, fill missing values and align raw telemetry",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.runner.Clean()
				return err
			},
		},
		&cobra.Command{
			Use:   "features",
			Short: "Derive engineered features from the cleaned telemetry",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.runner.Features()
				return err
			},
		},
		&cobra.Command{
			Use:   "train",
			Short: "Train the regression and sequence models",
			RunE: func(cmd *cobra.Command, args []string) error {
				report, err := a.runner.Train()
				if err != nil {
					return err
				}
				a.logger.Info().
					Interface("regression_model", report.Regression).
					Interface("lstm_model", report.Sequence).
					Msg("Model Performance")
				return nil
			},
		},
		&cobra.Command{
			Use:   "predict",
			Short: "Predict remaining useful life for every engineered row",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.runner.Predict(cmd.Context())
				return err
			},
		},
		&cobra.Command{
			Use:   "eda",
			Short: "Render exploratory charts of the cleaned telemetry",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.runner.EDA()
				return err
			},
		},
		newExportCommand(a),
		&cobra.Command{
			Use:   "publish",
			Short: "Upload trained models and metrics to the object store",
			RunE: func(cmd *cobra.Command, args []string) error {
				if !a.cfg.ObjectStore.Enabled {
					return fmt.Errorf("object store is disabled, set object_store.enabled")
				}
				store, err := artifact.NewObjectStore(a.logger, a.cfg.ObjectStore.Artifact())
				if err != nil {
					return err
				}
				_, err = a.runner.Publish(cmd.Context(), store)
				return err
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run clean, features, train, predict and eda in order",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runner.Run(cmd.Context())
			},
		},
	)

	return root
}

func newExportCommand(a *app) *cobra.Command {
	var format, name string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a pipeline table as a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "xlsx" {
				return fmt.Errorf("unsupported export format %q", format)
			}
			path, err := a.runner.Export(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "export format")
	cmd.Flags().StringVar(&name, "table", "features", "table to export: raw, cleaned, features or predictions")
	return cmd
}
