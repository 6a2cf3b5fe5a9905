package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/bandpower"
	"github.com/lucasjlepore/fruition-analyzer/brainvision"
	"github.com/lucasjlepore/fruition-analyzer/catalog"
)

// DefaultTimestampsFile is the observer log expected beside each recording.
const DefaultTimestampsFile = "timestamps.csv"

// Preprocess finds every .vhdr recording under InputDir, extracts its power
// table, merges the session's timestamps log, refines fruition mentions and
// writes <session>.csv (plus .parquet when requested) and manifest.json to
// OutDir. Sessions without a timestamps log or that fail to load are skipped;
// it is an error only when no session succeeds.
func Preprocess(ctx context.Context, opts PreprocessOptions) (*PreprocessResult, error) {
	if strings.TrimSpace(opts.InputDir) == "" {
		return nil, fmt.Errorf("input directory is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.TimestampsFile == "" {
		opts.TimestampsFile = DefaultTimestampsFile
	}
	logger := loggerOrDiscard(opts.Logger)
	opts.Refine.Logger = logger
	opts.Extraction.Logger = logger

	headers, err := findHeaders(opts.InputDir)
	if err != nil {
		return nil, err
	}
	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	res := &PreprocessResult{OutputDir: opts.OutDir}
	seen := make(map[string]string)
	for _, vhdr := range headers {
		sessionID := brainvision.SessionID(vhdr)
		skip := func(err error) {
			logger.Warn("skipping session", "session", sessionID, "path", vhdr, "error", err)
			res.Skipped = append(res.Skipped, SkippedSession{SessionID: sessionID, Path: vhdr, Reason: err.Error(), Err: err})
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", sessionID, err))
			recordSession(ctx, opts.Catalog, opts.RunID, catalog.Session{
				SessionID: sessionID, SourcePath: vhdr, Skipped: true, Reason: err.Error(),
			}, logger)
		}

		if prev, dup := seen[sessionID]; dup {
			skip(fmt.Errorf("session id already produced by %s", prev))
			continue
		}
		out, err := preprocessSession(vhdr, opts, format, logger)
		if err != nil {
			skip(err)
			continue
		}
		seen[sessionID] = vhdr
		res.Sessions = append(res.Sessions, *out)
		if out.UnmatchedMarkers > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d timestamps beyond the recording", sessionID, out.UnmatchedMarkers))
		}
		recordSession(ctx, opts.Catalog, opts.RunID, catalog.Session{
			SessionID:    sessionID,
			SourcePath:   vhdr,
			SourceSHA256: out.SourceSHA256,
			TablePath:    out.TablePath,
			Seconds:      out.Seconds,
			Mentions:     out.Mentions,
		}, logger)
		if opts.Catalog != nil && opts.RunID != "" {
			if err := opts.Catalog.RecordEvents(ctx, opts.RunID, sessionID, out.Events); err != nil {
				logger.Warn("catalog write failed", "session", sessionID, "error", err)
			}
		}
	}

	if len(res.Sessions) == 0 {
		return res, fmt.Errorf("no session under %s could be processed (%d skipped)", opts.InputDir, len(res.Skipped))
	}

	manifest := Manifest{
		GeneratedAt: time.Now().UTC(),
		InputDir:    opts.InputDir,
		Reference:   opts.Extraction.ReferenceChannel,
		Variance:    opts.Extraction.VarianceChannel,
		Band:        opts.Extraction.Band,
		Sessions:    res.Sessions,
		Skipped:     res.Skipped,
		Warnings:    res.Warnings,
	}
	res.ManifestPath = filepath.Join(opts.OutDir, ManifestName)
	if err := writeJSON(res.ManifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write %s: %w", ManifestName, err)
	}
	logger.Info("preprocess complete", "sessions", len(res.Sessions), "skipped", len(res.Skipped))
	return res, nil
}

func preprocessSession(vhdr string, opts PreprocessOptions, format string, logger *slog.Logger) (*SessionOutput, error) {
	tsPath := filepath.Join(filepath.Dir(vhdr), opts.TimestampsFile)
	if _, err := os.Stat(tsPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s not found: %w", tsPath, fruition.ErrMissingCompanionData)
		}
		return nil, fmt.Errorf("stat %s: %w", tsPath, err)
	}

	file, err := brainvision.Load(vhdr)
	if err != nil {
		return nil, err
	}
	table, err := bandpower.Extract(file.Recording, opts.Extraction)
	if err != nil {
		return nil, err
	}
	markers, err := ReadTimestamps(tsPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tsPath, err)
	}
	unmatched := table.MergeAnnotations(markers)
	for _, m := range unmatched {
		logger.Warn("timestamp outside recording", "session", table.SessionID, "second", m.Second, "label", m.Label)
	}
	refined := fruition.RefineEvents(table, opts.Refine)

	out := &SessionOutput{
		SessionID:        table.SessionID,
		SourceHeader:     vhdr,
		SourceSHA256:     file.SHA256,
		SourceSizeBytes:  file.SizeBytes,
		SampleRateHz:     file.Recording.SampleRate,
		Channels:         table.Channels,
		Seconds:          table.Rows(),
		TablePath:        filepath.Join(opts.OutDir, table.SessionID+".csv"),
		Markers:          len(markers),
		UnmatchedMarkers: len(unmatched),
		Mentions:         refined.Mentions,
		RefinedEvents:    len(refined.Events),
		SkippedMentions:  len(refined.Skipped),
		Events:           refined.Events,
	}
	if err := WritePowerTableCSV(out.TablePath, table); err != nil {
		return nil, fmt.Errorf("write power table: %w", err)
	}
	if format == "parquet" {
		out.ParquetPath = filepath.Join(opts.OutDir, table.SessionID+".parquet")
		if err := writePowerTableParquet(out.ParquetPath, table); err != nil {
			return nil, fmt.Errorf("write power table parquet: %w", err)
		}
	}
	logger.Info("session preprocessed",
		"session", table.SessionID,
		"seconds", out.Seconds,
		"mentions", out.Mentions,
		"refined", out.RefinedEvents,
	)
	return out, nil
}

// findHeaders returns every .vhdr file under root in lexical walk order.
func findHeaders(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".vhdr") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}

func recordSession(ctx context.Context, c *catalog.Catalog, runID string, s catalog.Session, logger *slog.Logger) {
	if c == nil || runID == "" {
		return
	}
	if err := c.RecordSession(ctx, runID, s); err != nil {
		logger.Warn("catalog write failed", "session", s.SessionID, "error", err)
	}
}
