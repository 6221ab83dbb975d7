package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Cleaning    CleaningConfig    `mapstructure:"cleaning"`
	Features    FeaturesConfig    `mapstructure:"features"`
	Training    TrainingConfig    `mapstructure:"training"`
	Server      ServerConfig      `mapstructure:"server"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Storage     StorageConfig     `mapstructure:"storage"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Log         LogConfig         `mapstructure:"log"`
}

// AppConfig holds application configuration
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// PathsConfig holds the locations of every pipeline artifact
type PathsConfig struct {
	RawData         string `mapstructure:"raw_data"`
	CleanedData     string `mapstructure:"cleaned_data"`
	Features        string `mapstructure:"features"`
	Predictions     string `mapstructure:"predictions"`
	ModelsDir       string `mapstructure:"models_dir"`
	RegressionModel string `mapstructure:"regression_model"`
	SequenceModel   string `mapstructure:"sequence_model"`
	Metrics         string `mapstructure:"metrics"`
	EDADir          string `mapstructure:"eda_dir"`
	ExportDir       string `mapstructure:"export_dir"`
}

// CleaningConfig holds cleaning stage settings
type CleaningConfig struct {
	TimeColumn string        `mapstructure:"time_column"`
	Interval   time.Duration `mapstructure:"interval"`
}

// FeaturesConfig holds feature engineering settings
type FeaturesConfig struct {
	RollingColumn string `mapstructure:"rolling_column"`
	Windows       []int  `mapstructure:"windows"`
	LagColumn     string `mapstructure:"lag_column"`
	Lags          []int  `mapstructure:"lags"`
}

// TrainingConfig holds model training settings
type TrainingConfig struct {
	Target      string         `mapstructure:"target"`
	TestSize    float64        `mapstructure:"test_size"`
	RandomState uint64         `mapstructure:"random_state"`
	Forest      ForestConfig   `mapstructure:"forest"`
	Sequence    SequenceConfig `mapstructure:"sequence"`
}

// ForestConfig holds tree ensemble hyperparameters
type ForestConfig struct {
	NEstimators    int `mapstructure:"n_estimators"`
	MaxDepth       int `mapstructure:"max_depth"`
	MinSamplesLeaf int `mapstructure:"min_samples_leaf"`
	MaxFeatures    int `mapstructure:"max_features"`
}

// SequenceConfig holds sequence model hyperparameters
type SequenceConfig struct {
	Units          int     `mapstructure:"units"`
	SpectralRadius float64 `mapstructure:"spectral_radius"`
	InputScale     float64 `mapstructure:"input_scale"`
	Ridge          float64 `mapstructure:"ridge"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTP HTTPServerConfig `mapstructure:"http"`
	GRPC GRPCServerConfig `mapstructure:"grpc"`
}

// HTTPServerConfig holds HTTP server configuration
type HTTPServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the listen address
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCServerConfig holds gRPC server configuration
type GRPCServerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DashboardConfig holds dashboard server configuration
type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address
func (c DashboardConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds prediction storage configuration
type StorageConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ObjectStoreConfig holds artifact publishing configuration
type ObjectStoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// If configPath is provided, it will be used to load the configuration from that specific file.
// Otherwise, it will look for config.yaml in standard locations.
// Variables from an optional .env file in the working directory are
// exported before the environment is read.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set up environment variables
	v.SetEnvPrefix("BATTERY")
	v.AutomaticEnv()

	// Enable environment variable binding
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	setDefaults(v)

	// If a config path is provided, use that
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Otherwise look for config.yaml in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// Read the config file if it exists
	err := v.ReadInConfig()
	if err != nil {
		// If we have a specific config path and it doesn't exist, return error
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// For default config paths, it's okay if no config file is found
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal the config into the Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables in path without overriding ones that
// are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "battery-pm")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "0.1.0")

	// Artifact locations
	v.SetDefault("paths.raw_data", "data/battery_telemetry.csv")
	v.SetDefault("paths.cleaned_data", "processed_data/cleaned_telemetry.csv")
	v.SetDefault("paths.features", "processed_data/engineered_features.csv")
	v.SetDefault("paths.predictions", "processed_data/rul_predictions.csv")
	v.SetDefault("paths.models_dir", "trained_models")
	v.SetDefault("paths.regression_model", "trained_models/regression_model.json")
	v.SetDefault("paths.sequence_model", "trained_models/sequence_model.json")
	v.SetDefault("paths.metrics", "trained_models/metrics.json")
	v.SetDefault("paths.eda_dir", "eda_plots")
	v.SetDefault("paths.export_dir", "exports")

	// Cleaning defaults
	v.SetDefault("cleaning.time_column", "timestamp")
	v.SetDefault("cleaning.interval", time.Minute)

	// Feature defaults
	v.SetDefault("features.rolling_column", "temperature")
	v.SetDefault("features.windows", []int{5})
	v.SetDefault("features.lag_column", "state_of_charge")
	v.SetDefault("features.lags", []int{1, 2, 3})

	// Training defaults
	v.SetDefault("training.target", "remaining_useful_life")
	v.SetDefault("training.test_size", 0.2)
	v.SetDefault("training.random_state", 42)
	v.SetDefault("training.forest.n_estimators", 100)
	v.SetDefault("training.forest.max_depth", 12)
	v.SetDefault("training.forest.min_samples_leaf", 1)
	v.SetDefault("training.forest.max_features", 0)
	v.SetDefault("training.sequence.units", 50)
	v.SetDefault("training.sequence.spectral_radius", 0.9)
	v.SetDefault("training.sequence.input_scale", 0.5)
	v.SetDefault("training.sequence.ridge", 1e-3)

	// Server defaults
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 5000)
	v.SetDefault("server.http.read_timeout", 30*time.Second)
	v.SetDefault("server.http.write_timeout", 30*time.Second)
	v.SetDefault("server.grpc.enabled", true)
	v.SetDefault("server.grpc.port", 50051)
	v.SetDefault("server.grpc.timeout", 10*time.Second)

	// Dashboard defaults
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 8050)

	// Storage defaults
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.password", "postgres")
	v.SetDefault("storage.postgres.dbname", "battery")
	v.SetDefault("storage.postgres.sslmode", "disable")

	// Object store defaults
	v.SetDefault("object_store.enabled", false)
	v.SetDefault("object_store.endpoint", "localhost:9000")
	v.SetDefault("object_store.bucket", "battery-models")
	v.SetDefault("object_store.access_key", "")
	v.SetDefault("object_store.secret_key", "")
	v.SetDefault("object_store.use_ssl", false)
	v.SetDefault("object_store.prefix", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
