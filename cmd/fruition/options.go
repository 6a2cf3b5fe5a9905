package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/bandpower"
	"github.com/lucasjlepore/fruition-analyzer/catalog"
	"github.com/lucasjlepore/fruition-analyzer/internal/config"
	"github.com/lucasjlepore/fruition-analyzer/internal/logging"
	"github.com/lucasjlepore/fruition-analyzer/pipeline"
)

// addOutputFlags registers the flags shared by every pipeline command.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("in", "", "Input directory")
	cmd.Flags().String("out", "", "Output directory")
	cmd.Flags().String("format", "", "Table format: csv|parquet (default from config)")
	cmd.Flags().Bool("overwrite", false, "Allow writing into non-empty output directories")
	cmd.Flags().String("catalog", "", "SQLite run catalog path (default from config)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
}

// settings are the resolved config, logger and directories of one command.
type settings struct {
	cfg    *config.Config
	logger *slog.Logger
	in     string
	out    string
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.Output.Format = format
	}
	if overwrite, _ := cmd.Flags().GetBool("overwrite"); overwrite {
		cfg.Output.Overwrite = true
	}
	if catalogPath, _ := cmd.Flags().GetString("catalog"); catalogPath != "" {
		cfg.Output.CatalogPath = catalogPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &settings{
		cfg:    cfg,
		logger: logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	}
	s.in, _ = cmd.Flags().GetString("in")
	s.out, _ = cmd.Flags().GetString("out")
	return s, nil
}

func preprocessOptions(s *settings) pipeline.PreprocessOptions {
	e := s.cfg.Extraction
	return pipeline.PreprocessOptions{
		InputDir:       s.in,
		OutDir:         s.out,
		TimestampsFile: e.TimestampsFile,
		Extraction: bandpower.Options{
			ReferenceChannel: e.ReferenceChannel,
			VarianceChannel:  e.VarianceChannel,
			Band:             bandpower.Band{Low: e.BandLow, High: e.BandHigh},
			PowerScale:       e.PowerScale,
			VarianceScale:    e.VarianceScale,
			Estimator:        bandpower.NewMultitaper(e.TimeHalfBandwidth),
		},
		Refine: fruition.RefineOptions{
			MaxLookback: s.cfg.Analysis.MaxSecondsBefore,
			Dedup:       s.cfg.Analysis.DedupRefined,
		},
		Format:    s.cfg.Output.Format,
		Overwrite: s.cfg.Output.Overwrite,
		Logger:    s.logger,
	}
}

// analyzeOptions leaves the reference channel out of the window mean along
// with the configured exclusions, since its re-referenced power is zero.
func analyzeOptions(s *settings) pipeline.AnalyzeOptions {
	a := s.cfg.Analysis
	exclude := append([]string(nil), a.ExcludeColumns...)
	exclude = append(exclude, s.cfg.Extraction.ReferenceChannel)
	return pipeline.AnalyzeOptions{
		InputDir: s.in,
		OutDir:   s.out,
		Window: fruition.WindowOptions{
			HalfWidth:      a.FruitionWindow,
			MinLeadRows:    a.WindowSize,
			SmoothSpan:     a.RollingAvgSeconds,
			ExcludeColumns: exclude,
		},
		ProfileSpan: a.WindowSize,
		NumClusters: a.NumClusters,
		Seed:        a.Seed,
		Format:      s.cfg.Output.Format,
		Overwrite:   s.cfg.Output.Overwrite,
		Logger:      s.logger,
		LogLevel:    s.cfg.Logging.Level,
	}
}

// run is a catalog run that is a no-op when no catalog is configured.
type run struct {
	catalog *catalog.Catalog
	id      string
	logger  *slog.Logger
}

func beginRun(ctx context.Context, s *settings, command string) (*run, error) {
	r := &run{logger: s.logger}
	if s.cfg.Output.CatalogPath == "" {
		return r, nil
	}
	c, err := catalog.Open(ctx, s.cfg.Output.CatalogPath)
	if err != nil {
		return nil, err
	}
	id, err := c.BeginRun(ctx, command, s.cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	s.logger.Debug("catalog run started", "catalog", c.Path(), "run", id)
	r.catalog, r.id = c, id
	return r, nil
}

// finish records the outcome and closes the catalog.
func (r *run) finish(ctx context.Context, summary *fruition.Summary, runErr error) {
	if r.catalog == nil {
		return
	}
	if err := r.catalog.FinishRun(context.WithoutCancel(ctx), r.id, summary, runErr); err != nil {
		r.logger.Warn("catalog write failed", "run", r.id, "error", err)
	}
	if err := r.catalog.Close(); err != nil {
		r.logger.Warn("closing catalog", "error", err)
	}
}
