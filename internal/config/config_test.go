package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Analysis.FruitionWindow != 50 || cfg.Analysis.NumClusters != 2 || cfg.Extraction.ReferenceChannel != "A2" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fruition.yaml")
	data := `
analysis:
  fruition_window: 30
  num_clusters: 3
output:
  format: parquet
  catalog_path: ${FRUITION_TEST_DIR}/runs.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FRUITION_TEST_DIR", "/tmp/fruition")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile error: %v", err)
	}
	if cfg.Analysis.FruitionWindow != 30 || cfg.Analysis.NumClusters != 3 {
		t.Fatalf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Analysis.MaxSecondsBefore != 50 || cfg.Extraction.VarianceChannel != "Fp1" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Output.Format != "parquet" || cfg.Output.CatalogPath != "/tmp/fruition/runs.db" {
		t.Fatalf("output = %+v", cfg.Output)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("FRUITION_LOG_LEVEL", "debug")
	t.Setenv("FRUITION_FORMAT", "parquet")
	t.Setenv("FRUITION_NUM_CLUSTERS", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Output.Format != "parquet" || cfg.Analysis.NumClusters != 4 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"format", func(c *Config) { c.Output.Format = "xlsx" }, "invalid format"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"window", func(c *Config) { c.Analysis.FruitionWindow = 0 }, "fruition_window"},
		{"band", func(c *Config) { c.Extraction.BandHigh = 4 }, "band"},
		{"clusters", func(c *Config) { c.Analysis.NumClusters = 0 }, "num_clusters"},
		{"reference", func(c *Config) { c.Extraction.ReferenceChannel = "" }, "reference_channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
