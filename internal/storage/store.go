package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStorage implements PredictionStore for PostgreSQL
type PostgresStorage struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(logger zerolog.Logger, cfg *PostgresConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStorage{
		db:     db,
		logger: logger.With().Str("component", "postgres_storage").Logger(),
	}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rul_predictions (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			rul DOUBLE PRECISION NOT NULL,
			regression_model_prediction DOUBLE PRECISION NOT NULL,
			lstm_model_prediction DOUBLE PRECISION NOT NULL,
			telemetry JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_rul_predictions_timestamp ON rul_predictions (timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create rul_predictions table: %w", err)
	}

	return nil
}

// Store implements PredictionStore.Store
func (s *PostgresStorage) Store(ctx context.Context, record PredictionRecord) error {
	var telemetry sql.NullString
	if len(record.Telemetry) > 0 {
		data, err := json.Marshal(record.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to encode telemetry: %w", err)
		}
		telemetry = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rul_predictions (
			id, timestamp, rul, regression_model_prediction,
			lstm_model_prediction, telemetry
		) VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.ID,
		record.Timestamp,
		record.RUL,
		record.RegressionPrediction,
		record.SequencePrediction,
		telemetry,
	)
	if err != nil {
		s.logger.Error().Err(err).
			Str("id", record.ID).
			Msg("failed to insert prediction")
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// List implements PredictionStore.List
func (s *PostgresStorage) List(ctx context.Context, start, end time.Time) ([]PredictionRecord, error) {
	query := `
		SELECT id, timestamp, rul, regression_model_prediction,
			lstm_model_prediction, telemetry
		FROM rul_predictions
		WHERE TRUE
	`

	var args []interface{}
	argIndex := 1

	if !start.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, start)
		argIndex++
	}

	if !end.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, end)
	}

	query += " ORDER BY timestamp ASC"

	return s.query(ctx, query, args...)
}

// Latest implements PredictionStore.Latest
func (s *PostgresStorage) Latest(ctx context.Context, n int) ([]PredictionRecord, error) {
	if n <= 0 {
		return []PredictionRecord{}, nil
	}
	return s.query(ctx, `
		SELECT id, timestamp, rul, regression_model_prediction,
			lstm_model_prediction, telemetry
		FROM rul_predictions
		ORDER BY timestamp DESC
		LIMIT $1
	`, n)
}

func (s *PostgresStorage) query(ctx context.Context, query string, args ...interface{}) ([]PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	result := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var telemetry []byte
		err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.RUL,
			&r.RegressionPrediction,
			&r.SequencePrediction,
			&telemetry,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction row: %w", err)
		}
		if len(telemetry) > 0 {
			if err := json.Unmarshal(telemetry, &r.Telemetry); err != nil {
				return nil, fmt.Errorf("failed to decode telemetry: %w", err)
			}
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prediction rows: %w", err)
	}

	return result, nil
}

// Close implements PredictionStore.Close
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Ensure PostgresStorage implements PredictionStore
var _ PredictionStore = (*PostgresStorage)(nil)
