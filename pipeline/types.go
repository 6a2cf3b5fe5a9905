package pipeline

import (
	"log/slog"
	"time"

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/bandpower"
	"github.com/lucasjlepore/fruition-analyzer/catalog"
	"github.com/lucasjlepore/fruition-analyzer/internal/logging"
)

// Artifact names written by Analyze.
const (
	WindowTableName   = "all_fruition_events"
	AlignedCurvesName = "aligned_curves.csv"
	AssignmentsName   = "cluster_assignments.json"
	ProfilesName      = "cluster_profiles.csv"
	SummaryName       = "analysis_summary.json"
	NotesName         = "analysis_notes.md"
	ManifestName      = "manifest.json"
)

// PreprocessOptions configures Preprocess.
type PreprocessOptions struct {
	InputDir string
	OutDir   string

	// TimestampsFile is the annotation log looked up next to each header.
	TimestampsFile string

	Extraction bandpower.Options
	Refine     fruition.RefineOptions

	Format    string // csv|parquet
	Overwrite bool

	Catalog *catalog.Catalog
	RunID   string
	Logger  *slog.Logger
}

// PreprocessResult lists what Preprocess wrote.
type PreprocessResult struct {
	OutputDir    string           `json:"output_dir"`
	ManifestPath string           `json:"manifest_path"`
	Sessions     []SessionOutput  `json:"sessions"`
	Skipped      []SkippedSession `json:"skipped,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// SessionOutput describes one processed recording.
type SessionOutput struct {
	SessionID        string   `json:"session_id"`
	SourceHeader     string   `json:"source_header"`
	SourceSHA256     string   `json:"source_sha256"`
	SourceSizeBytes  int64    `json:"source_size_bytes"`
	SampleRateHz     float64  `json:"sample_rate_hz"`
	Channels         []string `json:"channels"`
	Seconds          int      `json:"seconds"`
	TablePath        string   `json:"table_path"`
	ParquetPath      string   `json:"parquet_path,omitempty"`
	Markers          int      `json:"markers"`
	UnmatchedMarkers int      `json:"unmatched_markers"`
	Mentions         int      `json:"mentions"`
	RefinedEvents    int      `json:"refined_events"`
	SkippedMentions  int      `json:"skipped_mentions"`

	Events []fruition.RefinedEvent `json:"events"`
}

// SkippedSession is a recording that produced no power table.
type SkippedSession struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// Manifest is the manifest.json written by Preprocess.
type Manifest struct {
	GeneratedAt time.Time        `json:"generated_at"`
	InputDir    string           `json:"input_dir"`
	Reference   string           `json:"reference_channel"`
	Variance    string           `json:"variance_channel"`
	Band        bandpower.Band   `json:"band"`
	Sessions    []SessionOutput  `json:"sessions"`
	Skipped     []SkippedSession `json:"skipped,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// AnalyzeOptions configures Analyze.
type AnalyzeOptions struct {
	InputDir string
	OutDir   string

	Window fruition.WindowOptions

	// ProfileSpan smooths each cluster's mean series.
	ProfileSpan int

	NumClusters int
	Seed        uint64

	Format    string // csv|parquet
	Overwrite bool

	Catalog   *catalog.Catalog
	RunID     string
	Logger    *slog.Logger
	Decisions *logging.DecisionLogger

	// LogLevel at debug or trace opens OutDir/decisions.jsonl when Decisions is nil.
	LogLevel string
}

// AnalyzeResult lists what Analyze wrote.
type AnalyzeResult struct {
	OutputDir         string            `json:"output_dir"`
	WindowTablePath   string            `json:"window_table_path"`
	AlignedCurvesPath string            `json:"aligned_curves_path"`
	AssignmentsPath   string            `json:"assignments_path"`
	ProfilesPath      string            `json:"profiles_path"`
	SummaryPath       string            `json:"summary_path"`
	NotesPath         string            `json:"notes_path"`
	DecisionsPath     string            `json:"decisions_path,omitempty"`
	Summary           *fruition.Summary `json:"summary"`
}

// AssignmentsFile is cluster_assignments.json.
type AssignmentsFile struct {
	Outlier         string         `json:"outlier"`
	OutlierDistance float64        `json:"outlier_distance"`
	Initial         map[string]int `json:"initial"`
	Final           map[string]int `json:"final"`
	Projection      []PCAPoint     `json:"projection"`
	CleanProjection []PCAPoint     `json:"clean_projection"`
}

// PCAPoint is one window in principal-component space.
type PCAPoint struct {
	Label    string  `json:"label"`
	PC1      float64 `json:"pc1"`
	PC2      float64 `json:"pc2"`
	Distance float64 `json:"distance"`
	Cluster  int     `json:"cluster"`
}
