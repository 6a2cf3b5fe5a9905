package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// AnalysisDirName is the subdirectory Run writes analysis artifacts to.
const AnalysisDirName = "analysis"

// RunResult bundles both stages of Run.
type RunResult struct {
	Preprocess *PreprocessResult `json:"preprocess"`
	Analyze    *AnalyzeResult    `json:"analyze"`
}

// Run executes Preprocess and then Analyze over its power tables. Analysis
// reads from pre.OutDir unless an input directory is given and writes to
// pre.OutDir/analysis unless an output directory is given.
func Run(ctx context.Context, pre PreprocessOptions, an AnalyzeOptions) (*RunResult, error) {
	preRes, err := Preprocess(ctx, pre)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(an.InputDir) == "" {
		an.InputDir = pre.OutDir
	}
	if strings.TrimSpace(an.OutDir) == "" {
		an.OutDir = filepath.Join(pre.OutDir, AnalysisDirName)
	}
	if an.Format == "" {
		an.Format = pre.Format
	}
	an.Overwrite = an.Overwrite || pre.Overwrite
	if an.Catalog == nil {
		an.Catalog, an.RunID = pre.Catalog, pre.RunID
	}
	if an.Logger == nil {
		an.Logger = pre.Logger
	}

	anRes, err := Analyze(ctx, an)
	if err != nil {
		return &RunResult{Preprocess: preRes}, err
	}
	anRes.Summary.Warnings = append(append([]string(nil), preRes.Warnings...), anRes.Summary.Warnings...)
	return &RunResult{Preprocess: preRes, Analyze: anRes}, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected csv|parquet)", format)
	}
	return format, nil
}

func formatExtension(format string) string {
	if format == "parquet" {
		return "parquet"
	}
	return "csv"
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
