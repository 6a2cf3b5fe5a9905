// Package config loads analysis settings from YAML files and environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the preprocess and analyze steps.
type Config struct {
	// Extraction configures the band-power extractor.
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`

	// Analysis configures refinement, windows and clustering.
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Output configures artifact formats and the run catalog.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging configures log verbosity.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ExtractionConfig configures band power and variance computation.
type ExtractionConfig struct {
	ReferenceChannel  string  `json:"reference_channel" yaml:"reference_channel"`
	VarianceChannel   string  `json:"variance_channel" yaml:"variance_channel"`
	BandLow           float64 `json:"band_low_hz" yaml:"band_low_hz"`
	BandHigh          float64 `json:"band_high_hz" yaml:"band_high_hz"`
	PowerScale        float64 `json:"power_scale" yaml:"power_scale"`
	VarianceScale     float64 `json:"variance_scale" yaml:"variance_scale"`
	TimeHalfBandwidth float64 `json:"time_half_bandwidth" yaml:"time_half_bandwidth"`

	// TimestampsFile is the annotation log expected next to each recording.
	TimestampsFile string `json:"timestamps_file" yaml:"timestamps_file"`
}

// AnalysisConfig configures the event pipeline.
type AnalysisConfig struct {
	// FruitionWindow is W: windows span 2W+1 seconds.
	FruitionWindow int `json:"fruition_window" yaml:"fruition_window"`

	// MaxSecondsBefore bounds the refiner's lookback.
	MaxSecondsBefore int `json:"max_seconds_before" yaml:"max_seconds_before"`

	// RollingAvgSeconds is the span of the overlay curve moving average.
	RollingAvgSeconds int `json:"rolling_avg_seconds" yaml:"rolling_avg_seconds"`

	// WindowSize is both the minimum event row and the cluster profile smoothing span.
	WindowSize int `json:"window_size" yaml:"window_size"`

	NumClusters    int      `json:"num_clusters" yaml:"num_clusters"`
	Seed           uint64   `json:"seed" yaml:"seed"`
	DedupRefined   bool     `json:"dedup_refined" yaml:"dedup_refined"`
	ExcludeColumns []string `json:"exclude_columns" yaml:"exclude_columns"`
}

// OutputConfig configures artifact writing.
type OutputConfig struct {
	// Format is "csv" or "parquet".
	Format    string `json:"format" yaml:"format"`
	Overwrite bool   `json:"overwrite" yaml:"overwrite"`

	// CatalogPath enables the SQLite run catalog when set.
	CatalogPath string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is "warn", "info" (default), "debug" or "trace". Debug and trace
	// also write decisions.jsonl next to the analysis outputs.
	Level string `json:"level" yaml:"level"`
}

// Default returns the settings of the reference analysis.
func Default() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			ReferenceChannel:  "A2",
			VarianceChannel:   "Fp1",
			BandLow:           8,
			BandHigh:          12,
			PowerScale:        1e13,
			VarianceScale:     1e9,
			TimeHalfBandwidth: 4,
			TimestampsFile:    "timestamps.csv",
		},
		Analysis: AnalysisConfig{
			FruitionWindow:    50,
			MaxSecondsBefore:  50,
			RollingAvgSeconds: 10,
			WindowSize:        5,
			NumClusters:       2,
			Seed:              42,
			DedupRefined:      true,
			ExcludeColumns:    []string{"Fp1", "Fp2", "F7", "F8", "F3", "F4", "Fz", "ExG 1"},
		},
		Output: OutputConfig{
			Format: "csv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns defaults, overlaid by path when it is set, then by
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Output.CatalogPath = os.ExpandEnv(cfg.Output.CatalogPath)
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	e, a := c.Extraction, c.Analysis
	if e.ReferenceChannel == "" || e.VarianceChannel == "" {
		return fmt.Errorf("reference_channel and variance_channel are required")
	}
	if e.BandLow < 0 || e.BandHigh <= e.BandLow {
		return fmt.Errorf("band must satisfy 0 <= band_low_hz < band_high_hz, got %v..%v", e.BandLow, e.BandHigh)
	}
	if e.PowerScale <= 0 || e.VarianceScale <= 0 {
		return fmt.Errorf("power_scale and variance_scale must be positive")
	}
	if e.TimeHalfBandwidth < 1 {
		return fmt.Errorf("time_half_bandwidth must be at least 1, got %v", e.TimeHalfBandwidth)
	}
	if e.TimestampsFile == "" {
		return fmt.Errorf("timestamps_file is required")
	}
	if a.FruitionWindow < 1 {
		return fmt.Errorf("fruition_window must be positive, got %d", a.FruitionWindow)
	}
	if a.MaxSecondsBefore < 1 {
		return fmt.Errorf("max_seconds_before must be positive, got %d", a.MaxSecondsBefore)
	}
	if a.RollingAvgSeconds < 1 || a.WindowSize < 1 {
		return fmt.Errorf("rolling_avg_seconds and window_size must be positive")
	}
	if a.NumClusters < 1 {
		return fmt.Errorf("num_clusters must be positive, got %d", a.NumClusters)
	}

	validFormats := map[string]bool{"csv": true, "parquet": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("invalid format: %s (valid: csv, parquet)", c.Output.Format)
	}
	validLevels := map[string]bool{"": true, "warn": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace)", c.Logging.Level)
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("FRUITION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FRUITION_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("FRUITION_CATALOG"); v != "" {
		c.Output.CatalogPath = v
	}
	if v := os.Getenv("FRUITION_NUM_CLUSTERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analysis.NumClusters = n
		}
	}
}
