// Package storage persists served remaining-useful-life predictions.
package storage

import (
	"context"
	"time"
)

// PredictionRecord is a single served prediction
type PredictionRecord struct {
	ID                   string             `json:"id"`
	Timestamp            time.Time          `json:"timestamp"`
	RUL                  float64            `json:"rul_prediction"`
	RegressionPrediction float64            `json:"regression_model_prediction"`
	SequencePrediction   float64            `json:"lstm_model_prediction"`
	Telemetry            map[string]float64 `json:"telemetry,omitempty"`
}

// PredictionStore defines the interface for prediction storage
type PredictionStore interface {
	// Store records a prediction
	Store(ctx context.Context, record PredictionRecord) error
	// List returns predictions within [start, end] ordered by timestamp.
	// A zero bound is open.
	List(ctx context.Context, start, end time.Time) ([]PredictionRecord, error)
	// Latest returns the n most recent predictions, newest first
	Latest(ctx context.Context, n int) ([]PredictionRecord, error)
	// Close closes the storage connection
	Close() error
}
