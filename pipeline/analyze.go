package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/catalog"
	"github.com/lucasjlepore/fruition-analyzer/cluster"
	"github.com/lucasjlepore/fruition-analyzer/internal/logging"
)

// SessionWindows is one session's share of the window table. Sessions are
// extracted independently and merged by AnalyzeTables.
type SessionWindows struct {
	SessionID string
	Table     *fruition.WindowTable
	Curves    []fruition.Curve
	Decisions []catalog.Window
	Skipped   int
	Discarded int
	Warnings  []string
}

// ExtractSessionWindows builds the windows and curves of every refined event
// in t. Ordinals count all refined events, so skipped ones leave gaps.
func ExtractSessionWindows(t *fruition.PowerTable, opts fruition.WindowOptions, logger *slog.Logger, decisions *logging.DecisionLogger) *SessionWindows {
	logger = loggerOrDiscard(logger)
	sw := &SessionWindows{
		SessionID: t.SessionID,
		Table:     fruition.NewWindowTable(opts.Length()),
	}
	for i, ev := range t.RefinedEvents() {
		ordinal := i + 1
		label := fruition.WindowLabel(t.SessionID, ordinal)
		decision := catalog.Window{Label: label, SessionID: t.SessionID, Ordinal: ordinal, EventSecond: ev.Second}

		w, err := fruition.ExtractWindow(t, ev, ordinal, opts)
		if w != nil {
			sw.Curves = append(sw.Curves, w.Curve)
		}
		if err == nil {
			err = sw.Table.Add(w.Label, w.Values)
		}
		switch {
		case err == nil:
			decision.Status = catalog.StatusKept
		case errors.Is(err, fruition.ErrInsufficientLookback):
			decision.Status, decision.Reason = catalog.StatusSkipped, err.Error()
			sw.Skipped++
		default:
			decision.Status, decision.Reason = catalog.StatusDiscarded, err.Error()
			sw.Discarded++
		}
		if err != nil {
			logger.Warn("window not kept", "session", t.SessionID, "label", label, "status", decision.Status, "error", err)
			sw.Warnings = append(sw.Warnings, err.Error())
		} else {
			logger.Debug("window kept", "session", t.SessionID, "label", label, "second", ev.Second)
		}
		if err := decisions.Log(map[string]any{
			"decision": "window_" + decision.Status,
			"session":  t.SessionID,
			"label":    label,
			"second":   ev.Second,
			"reason":   decision.Reason,
		}); err != nil {
			logger.Warn("decision log write failed", "label", label, "error", err)
		}
		sw.Decisions = append(sw.Decisions, decision)
	}
	return sw
}

// Analysis is the in-memory outcome of AnalyzeTables.
type Analysis struct {
	Windows   *fruition.WindowTable
	Curves    []fruition.Curve
	Aligned   fruition.AlignedCurves
	Clusters  *cluster.Result
	Profiles  []cluster.Profile
	Decisions []catalog.Window
	Summary   *fruition.Summary
}

// AnalyzeTables extracts, aligns and clusters the windows of tables, which
// are processed in order.
func AnalyzeTables(tables []*fruition.PowerTable, opts AnalyzeOptions) (*Analysis, error) {
	logger := loggerOrDiscard(opts.Logger)
	wopts := opts.Window.WithDefaults()
	k := opts.NumClusters
	if k <= 0 {
		k = cluster.DefaultClusters
	}
	span := opts.ProfileSpan
	if span <= 0 {
		span = cluster.DefaultProfileSpan
	}

	a := &Analysis{Windows: fruition.NewWindowTable(wopts.Length())}
	summary := &fruition.Summary{Sessions: len(tables), HalfWidth: wopts.HalfWidth}
	for _, t := range tables {
		sw := ExtractSessionWindows(t, wopts, logger, opts.Decisions)
		if err := a.Windows.Merge(sw.Table); err != nil {
			return nil, fmt.Errorf("session %s: %w", t.SessionID, err)
		}
		a.Curves = append(a.Curves, sw.Curves...)
		a.Decisions = append(a.Decisions, sw.Decisions...)
		summary.RefinedEvents += len(sw.Decisions)
		summary.SkippedEvents += sw.Skipped
		summary.DiscardedWindows += sw.Discarded
		summary.Warnings = append(summary.Warnings, sw.Warnings...)
	}
	summary.Windows = a.Windows.Len()

	a.Aligned = fruition.AlignCurves(a.Curves, wopts.HalfWidth)
	summary.Curves = len(a.Curves)
	summary.AlignmentAnomalies = len(a.Aligned.Anomalies)
	for _, err := range a.Aligned.Anomalies {
		logger.Warn("curve not aligned", "error", err)
		summary.Warnings = append(summary.Warnings, err.Error())
	}
	a.Summary = summary

	if a.Windows.Len() == 0 {
		return a, fmt.Errorf("%d sessions, %d refined events: %w", len(tables), summary.RefinedEvents, fruition.ErrNoWindows)
	}

	res, err := cluster.NewEngine(k, opts.Seed, logger).Run(a.Windows)
	if err != nil {
		return a, err
	}
	a.Clusters = res
	summary.Outlier = res.Outlier
	summary.OutlierDistance = res.OutlierDistance

	a.Profiles = cluster.Profiles(a.Windows, res.Assignment(), span)
	for _, p := range a.Profiles {
		summary.Clusters = append(summary.Clusters, fruition.SummarizeProfile(p.Cluster, p.Members, p.Mean))
	}
	logger.Info("clustering complete", "windows", a.Windows.Len(), "outlier", res.Outlier, "clusters", len(a.Profiles))
	return a, nil
}

// Analyze reads every power table CSV in InputDir, runs AnalyzeTables and
// writes the window table, aligned curves, cluster assignments and profiles,
// the JSON summary and text notes to OutDir.
func Analyze(ctx context.Context, opts AnalyzeOptions) (*AnalyzeResult, error) {
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
	logger := loggerOrDiscard(opts.Logger)

	tables, warnings, err := loadPowerTables(opts.InputDir, logger)
	if err != nil {
		return nil, err
	}
	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}
	if opts.Decisions == nil && opts.LogLevel != "" {
		opts.Decisions = logging.NewDecisionLogger(opts.OutDir, opts.LogLevel)
		defer opts.Decisions.Close()
	}

	a, err := AnalyzeTables(tables, opts)
	if a != nil {
		a.Summary.Warnings = append(warnings, a.Summary.Warnings...)
		recordWindows(ctx, opts, a.Decisions, logger)
	}
	if err != nil {
		return nil, err
	}

	res := &AnalyzeResult{
		OutputDir:         opts.OutDir,
		WindowTablePath:   filepath.Join(opts.OutDir, WindowTableName+"."+formatExtension(format)),
		AlignedCurvesPath: filepath.Join(opts.OutDir, AlignedCurvesName),
		AssignmentsPath:   filepath.Join(opts.OutDir, AssignmentsName),
		ProfilesPath:      filepath.Join(opts.OutDir, ProfilesName),
		SummaryPath:       filepath.Join(opts.OutDir, SummaryName),
		NotesPath:         filepath.Join(opts.OutDir, NotesName),
		DecisionsPath:     opts.Decisions.Path(),
		Summary:           a.Summary,
	}

	switch format {
	case "csv":
		if err := writeWindowTableCSV(res.WindowTablePath, a.Windows); err != nil {
			return nil, fmt.Errorf("write window table csv: %w", err)
		}
	case "parquet":
		if err := writeWindowTableParquet(res.WindowTablePath, a.Windows); err != nil {
			return nil, fmt.Errorf("write window table parquet: %w", err)
		}
	}
	if err := writeAlignedCurvesCSV(res.AlignedCurvesPath, a.Aligned); err != nil {
		return nil, fmt.Errorf("write %s: %w", AlignedCurvesName, err)
	}
	if err := writeJSON(res.AssignmentsPath, buildAssignmentsFile(a.Clusters)); err != nil {
		return nil, fmt.Errorf("write %s: %w", AssignmentsName, err)
	}
	if err := writeProfilesCSV(res.ProfilesPath, a.Profiles, a.Aligned.HalfWidth); err != nil {
		return nil, fmt.Errorf("write %s: %w", ProfilesName, err)
	}
	if err := writeJSON(res.SummaryPath, a.Summary); err != nil {
		return nil, fmt.Errorf("write %s: %w", SummaryName, err)
	}
	notes := fruition.BuildAnalysisNotes(a.Summary) + "\n"
	if err := os.WriteFile(res.NotesPath, []byte(notes), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", NotesName, err)
	}

	if opts.Catalog != nil && opts.RunID != "" {
		if err := opts.Catalog.RecordClustering(ctx, opts.RunID, a.Clusters); err != nil {
			logger.Warn("catalog write failed", "error", err)
		}
	}
	return res, nil
}

var analysisArtifacts = map[string]bool{
	WindowTableName + ".csv": true,
	AlignedCurvesName:        true,
	ProfilesName:             true,
}

// loadPowerTables reads the power table CSVs of dir in name order. Files that
// cannot be read are skipped with a warning.
func loadPowerTables(dir string, logger *slog.Logger) ([]*fruition.PowerTable, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read input directory: %w", err)
	}
	var (
		tables   []*fruition.PowerTable
		warnings []string
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".csv") || analysisArtifacts[name] {
			continue
		}
		path := filepath.Join(dir, name)
		t, missing, err := ReadPowerTableCSV(path)
		if err != nil {
			logger.Warn("skipping power table", "path", path, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if len(missing) > 0 {
			logger.Warn("power table has missing seconds", "session", t.SessionID, "missing", len(missing))
			warnings = append(warnings, fmt.Sprintf("%s: %d missing seconds", t.SessionID, len(missing)))
		}
		logger.Debug("loaded power table", "session", t.SessionID, "seconds", t.Rows())
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, warnings, fmt.Errorf("no power tables in %s: %w", dir, fruition.ErrNoWindows)
	}
	return tables, warnings, nil
}

func recordWindows(ctx context.Context, opts AnalyzeOptions, decisions []catalog.Window, logger *slog.Logger) {
	if opts.Catalog == nil || opts.RunID == "" {
		return
	}
	for _, d := range decisions {
		if err := opts.Catalog.RecordWindow(ctx, opts.RunID, d); err != nil {
			logger.Warn("catalog write failed", "label", d.Label, "error", err)
			return
		}
	}
}

func buildAssignmentsFile(res *cluster.Result) AssignmentsFile {
	out := AssignmentsFile{
		Outlier:         res.Outlier,
		OutlierDistance: res.OutlierDistance,
		Initial:         make(map[string]int, len(res.Labels)),
		Final:           res.Assignment(),
	}
	for i, label := range res.Labels {
		out.Initial[label] = res.Initial[i]
		out.Projection = append(out.Projection, pcaPoint(label, res.Projection[i], res.Initial[i]))
	}
	for i, label := range res.Remaining {
		out.CleanProjection = append(out.CleanProjection, pcaPoint(label, res.CleanProjection[i], res.Final[i]))
	}
	return out
}

func pcaPoint(label string, coords []float64, clusterID int) PCAPoint {
	p := PCAPoint{Label: label, Cluster: clusterID}
	if len(coords) > 0 {
		p.PC1 = coords[0]
	}
	if len(coords) > 1 {
		p.PC2 = coords[1]
	}
	p.Distance = cluster.Norms([][]float64{coords})[0]
	return p
}

func offsetHeader(first string, halfWidth int) []string {
	header := make([]string, 0, 2*halfWidth+2)
	header = append(header, first)
	for off := -halfWidth; off <= halfWidth; off++ {
		header = append(header, strconv.Itoa(off))
	}
	return header
}

// writeWindowTableCSV writes one column per window and one row per second
// offset, without an index column.
func writeWindowTableCSV(path string, t *fruition.WindowTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	labels := t.Labels()
	if err := w.Write(labels); err != nil {
		return err
	}
	cols := make([][]float64, len(labels))
	for i, l := range labels {
		cols[i], _ = t.Column(l)
	}
	row := make([]string, len(labels))
	for r := 0; r < t.Length(); r++ {
		for i := range cols {
			row[i] = formatFloat(cols[i][r])
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeAlignedCurvesCSV(path string, aligned fruition.AlignedCurves) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(offsetHeader("label", aligned.HalfWidth)); err != nil {
		return err
	}
	for i, frame := range aligned.Frames {
		row := make([]string, 0, len(frame)+1)
		row = append(row, aligned.Labels[i])
		for _, v := range frame {
			row = append(row, formatFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeProfilesCSV writes offset_s then a mean and smoothed column per cluster.
func writeProfilesCSV(path string, profiles []cluster.Profile, halfWidth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"offset_s"}
	for _, p := range profiles {
		id := strconv.Itoa(p.Cluster + 1)
		header = append(header, "cluster_"+id+"_mean", "cluster_"+id+"_smooth")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for r := 0; r < 2*halfWidth+1; r++ {
		row := []string{strconv.Itoa(r - halfWidth)}
		for _, p := range profiles {
			row = append(row, formatFloat(p.Mean[r]), formatFloat(p.Smooth[r]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
