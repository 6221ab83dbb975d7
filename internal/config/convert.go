package config

import (
	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/features"
	"github.com/sreeram77/battery-pm/internal/model"
	"github.com/sreeram77/battery-pm/internal/storage"
)

// Options returns the feature engineering options
func (c FeaturesConfig) Options() features.Options {
	return features.Options{
		RollingColumn: c.RollingColumn,
		Windows:       c.Windows,
		LagColumn:     c.LagColumn,
		Lags:          c.Lags,
	}
}

// TrainConfig returns the model training parameters
func (c TrainingConfig) TrainConfig() model.TrainConfig {
	return model.TrainConfig{
		Target:   c.Target,
		TestSize: c.TestSize,
		Seed:     c.RandomState,
		Forest: model.ForestConfig{
			NEstimators:    c.Forest.NEstimators,
			MaxDepth:       c.Forest.MaxDepth,
			MinSamplesLeaf: c.Forest.MinSamplesLeaf,
			MaxFeatures:    c.Forest.MaxFeatures,
		},
		Sequence: model.SequenceConfig{
			Units:          c.Sequence.Units,
			SpectralRadius: c.Sequence.SpectralRadius,
			InputScale:     c.Sequence.InputScale,
			Ridge:          c.Sequence.Ridge,
		},
	}
}

// Storage returns the PostgreSQL connection settings
func (c PostgresConfig) Storage() *storage.PostgresConfig {
	return &storage.PostgresConfig{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,
	}
}

// Artifact returns the bucket settings used for publishing
func (c ObjectStoreConfig) Artifact() artifact.ObjectStoreConfig {
	return artifact.ObjectStoreConfig{
		Endpoint:  c.Endpoint,
		Bucket:    c.Bucket,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Prefix:    c.Prefix,
	}
}
