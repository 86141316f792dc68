package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for relnorm-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AnalysisConfig bounds and tunes dependency inference and decomposition.
type AnalysisConfig struct {
	// MaxDeterminantSize caps the attribute-subset size tried as an FD
	// determinant. Inference cost grows combinatorially with it.
	MaxDeterminantSize int `yaml:"max_determinant_size" env:"ANALYSIS_MAX_DETERMINANT_SIZE" env-default:"3"`

	// SampleRows caps how many rows dataset readers pull per table.
	SampleRows int `yaml:"sample_rows" env:"ANALYSIS_SAMPLE_ROWS" env-default:"50000"`

	// InferSingleColumnFDs enables the single-attribute determinant
	// pre-pass that seeds inference and prunes superset determinants.
	InferSingleColumnFDs bool `yaml:"infer_singlecol_fds" env:"ANALYSIS_INFER_SINGLECOL_FDS" env-default:"true"`

	// FDCheckNulls includes rows with null determinant cells in the FD
	// tests. Off by default: nulls compare equal to nothing.
	FDCheckNulls bool `yaml:"fd_check_nulls" env:"ANALYSIS_FD_CHECK_NULLS" env-default:"false"`

	// CategoricalMaxDistinct is the largest distinct-value count a text
	// attribute may have and still be classified categorical.
	CategoricalMaxDistinct int `yaml:"categorical_max_distinct" env:"ANALYSIS_CATEGORICAL_MAX_DISTINCT" env-default:"20"`

	// InferenceTimeoutSeconds bounds one inference run. Zero disables the
	// bound.
	InferenceTimeoutSeconds int `yaml:"inference_timeout_seconds" env:"ANALYSIS_INFERENCE_TIMEOUT_SECONDS" env-default:"60"`

	// MaxConcurrentTables bounds batch analysis parallelism.
	MaxConcurrentTables int `yaml:"max_concurrent_tables" env:"ANALYSIS_MAX_CONCURRENT_TABLES" env-default:"4"`

	// TargetForm is the default normal form decomposition aims for.
	TargetForm string `yaml:"target_form" env:"ANALYSIS_TARGET_FORM" env-default:"3NF"`
}

// LoggingConfig controls engine log output.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When no config.yaml exists (the embedding application supplies
// everything via environment), defaults and environment alone apply.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without touching files or the
// environment.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxDeterminantSize:      3,
			SampleRows:              50000,
			InferSingleColumnFDs:    true,
			FDCheckNulls:            false,
			CategoricalMaxDistinct:  20,
			InferenceTimeoutSeconds: 60,
			MaxConcurrentTables:     4,
			TargetForm:              "3NF",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.MaxDeterminantSize < 1 {
		return fmt.Errorf("max_determinant_size must be at least 1, got %d", a.MaxDeterminantSize)
	}
	if a.SampleRows < 2 {
		return fmt.Errorf("sample_rows must be at least 2, got %d", a.SampleRows)
	}
	if a.CategoricalMaxDistinct < 0 {
		return fmt.Errorf("categorical_max_distinct must not be negative, got %d", a.CategoricalMaxDistinct)
	}
	if a.InferenceTimeoutSeconds < 0 {
		return fmt.Errorf("inference_timeout_seconds must not be negative, got %d", a.InferenceTimeoutSeconds)
	}
	if a.MaxConcurrentTables < 1 {
		return fmt.Errorf("max_concurrent_tables must be at least 1, got %d", a.MaxConcurrentTables)
	}
	switch a.TargetForm {
	case "1NF", "2NF", "3NF":
	default:
		return fmt.Errorf("target_form must be 1NF, 2NF or 3NF, got %q", a.TargetForm)
	}
	return nil
}

// InferenceTimeout returns the inference bound as a duration, zero when
// disabled.
func (a AnalysisConfig) InferenceTimeout() time.Duration {
	return time.Duration(a.InferenceTimeoutSeconds) * time.Second
}
