package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/bandpower"
	"github.com/lucasjlepore/fruition-analyzer/brainvision"
	"github.com/lucasjlepore/fruition-analyzer/catalog"
)

const (
	testRate    = 64
	testSeconds = 240
)

// spikeSeconds are the seconds whose Fp1 variance peaks; each is noted five
// seconds later in the timestamps log.
var spikeSeconds = []int{55, 115, 175}

func synthRecording(sessionID string, gain float64) *fruition.Recording {
	n := testSeconds*testRate + 1
	rec := &fruition.Recording{
		SessionID:  sessionID,
		Channels:   []string{"Fp1", "O1", "O2", "Pz", "A2"},
		SampleRate: testRate,
		Samples:    make([][]float64, 5),
	}
	for c := range rec.Samples {
		rec.Samples[c] = make([]float64, n)
	}
	spiking := make(map[int]bool)
	for _, s := range spikeSeconds {
		spiking[s] = true
	}
	for i := 0; i < n; i++ {
		t := float64(i) / testRate
		second := i/testRate + 1
		ref := 3e-6 * math.Sin(2*math.Pi*2*t)
		amp := gain * 10e-6 * (1.5 + math.Sin(float64(second)/9))
		alpha := amp * math.Sin(2*math.Pi*10*t)

		fp1 := 1e-6 * float64(i%5)
		if spiking[second] {
			fp1 += 200e-6 * math.Sin(2*math.Pi*30*t)
		}
		rec.Samples[0][i] = ref + fp1
		rec.Samples[1][i] = ref + alpha
		rec.Samples[2][i] = ref + 0.8*alpha
		rec.Samples[3][i] = ref + 0.5*alpha + 2e-6*math.Sin(2*math.Pi*20*t)
		rec.Samples[4][i] = ref
	}
	return rec
}

func writeSession(t *testing.T, dir, sessionID string, gain float64, timestamps bool) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := brainvision.Write(dir, sessionID, synthRecording(sessionID, gain), brainvision.WriteOptions{}); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	if !timestamps {
		return
	}
	var b strings.Builder
	b.WriteString("time,label\n00:10,bell\n")
	for _, s := range spikeSeconds {
		fmt.Fprintf(&b, "%02d:%02d,Fruition\n", (s+5)/60, (s+5)%60)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultTimestampsFile), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write timestamps: %v", err)
	}
}

func preprocessOptions(in, out string) PreprocessOptions {
	return PreprocessOptions{
		InputDir:   in,
		OutDir:     out,
		Extraction: bandpower.DefaultOptions(),
		Refine:     fruition.RefineOptions{MaxLookback: fruition.DefaultMaxLookback, Dedup: true},
	}
}

func analyzeOptions() AnalyzeOptions {
	w := fruition.DefaultWindowOptions()
	w.ExcludeColumns = append(w.ExcludeColumns, "A2")
	return AnalyzeOptions{Window: w, NumClusters: 2, Seed: 42}
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	writeSession(t, filepath.Join(in, "a"), "meditation_01", 1, true)
	writeSession(t, filepath.Join(in, "b"), "meditation_02", 2, true)
	writeSession(t, filepath.Join(in, "c"), "meditation_03", 1, false)

	ctx := context.Background()
	cat, err := catalog.Open(ctx, filepath.Join(root, "runs.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer cat.Close()
	runID, err := cat.BeginRun(ctx, "run", map[string]any{"test": true})
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}

	pre := preprocessOptions(in, filepath.Join(root, "out"))
	pre.Catalog, pre.RunID = cat, runID
	res, err := Run(ctx, pre, analyzeOptions())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(res.Preprocess.Sessions) != 2 || len(res.Preprocess.Skipped) != 1 {
		t.Fatalf("sessions=%d skipped=%d, want 2 and 1", len(res.Preprocess.Sessions), len(res.Preprocess.Skipped))
	}
	if !errors.Is(res.Preprocess.Skipped[0].Err, fruition.ErrMissingCompanionData) {
		t.Fatalf("skip reason = %v, want missing companion data", res.Preprocess.Skipped[0].Err)
	}
	for _, s := range res.Preprocess.Sessions {
		if s.Seconds != testSeconds {
			t.Fatalf("%s: seconds = %d, want %d", s.SessionID, s.Seconds, testSeconds)
		}
		if s.Mentions != 3 || s.RefinedEvents != 3 {
			t.Fatalf("%s: mentions=%d refined=%d, want 3 and 3", s.SessionID, s.Mentions, s.RefinedEvents)
		}
		for i, ev := range s.Events {
			if ev.Second != spikeSeconds[i] {
				t.Fatalf("%s event %d at second %d, want %d", s.SessionID, i, ev.Second, spikeSeconds[i])
			}
		}
	}

	sum := res.Analyze.Summary
	if sum.Sessions != 2 || sum.Windows != 6 || sum.Curves != 6 || sum.AlignmentAnomalies != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Outlier == "" || len(sum.Clusters) == 0 {
		t.Fatalf("expected an outlier and clusters, got %+v", sum)
	}
	members := 0
	for _, c := range sum.Clusters {
		members += c.Size
	}
	if members != 5 {
		t.Fatalf("clustered windows = %d, want 5", members)
	}

	rows := readCSV(t, res.Analyze.WindowTablePath)
	if len(rows) != 102 || len(rows[0]) != 6 {
		t.Fatalf("window table is %dx%d, want 102x6", len(rows), len(rows[0]))
	}
	if rows[0][0] != "meditation_01_Fruition_1" || rows[0][5] != "meditation_02_Fruition_3" {
		t.Fatalf("unexpected window labels %v", rows[0])
	}
	curves := readCSV(t, res.Analyze.AlignedCurvesPath)
	if len(curves) != 7 || len(curves[0]) != 102 {
		t.Fatalf("aligned curves are %dx%d, want 7x102", len(curves), len(curves[0]))
	}
	profiles := readCSV(t, res.Analyze.ProfilesPath)
	if len(profiles) != 102 || profiles[1][0] != "-50" {
		t.Fatalf("unexpected profiles layout: %d rows, first offset %q", len(profiles), profiles[1][0])
	}

	var assignments AssignmentsFile
	data, err := os.ReadFile(res.Analyze.AssignmentsPath)
	if err != nil {
		t.Fatalf("read assignments: %v", err)
	}
	if err := json.Unmarshal(data, &assignments); err != nil {
		t.Fatalf("decode assignments: %v", err)
	}
	if len(assignments.Initial) != 6 || len(assignments.Final) != 5 || len(assignments.Projection) != 6 {
		t.Fatalf("assignments initial=%d final=%d projection=%d", len(assignments.Initial), len(assignments.Final), len(assignments.Projection))
	}
	if _, ok := assignments.Final[assignments.Outlier]; ok {
		t.Fatalf("outlier %s still assigned", assignments.Outlier)
	}

	notes, err := os.ReadFile(res.Analyze.NotesPath)
	if err != nil {
		t.Fatalf("read notes: %v", err)
	}
	if !strings.Contains(string(notes), "Removed outlier: "+sum.Outlier) {
		t.Fatalf("notes missing outlier line:\n%s", notes)
	}

	kept, err := cat.Windows(ctx, runID, catalog.StatusKept)
	if err != nil {
		t.Fatalf("catalog windows: %v", err)
	}
	if len(kept) != 6 {
		t.Fatalf("catalog kept windows = %d, want 6", len(kept))
	}
	final, err := cat.Assignments(ctx, runID, "final")
	if err != nil {
		t.Fatalf("catalog assignments: %v", err)
	}
	if len(final) != 5 {
		t.Fatalf("catalog final assignments = %d, want 5", len(final))
	}
}

func TestPreprocessRequiresOneSession(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	writeSession(t, in, "lonely", 1, false)

	res, err := Preprocess(context.Background(), preprocessOptions(in, filepath.Join(root, "out")))
	if err == nil {
		t.Fatal("expected an error when every session is skipped")
	}
	if res == nil || len(res.Skipped) != 1 {
		t.Fatalf("expected the skipped session to be reported, got %+v", res)
	}
}

func TestAnalyzeTooFewWindows(t *testing.T) {
	tbl := fruition.NewPowerTable("short", []string{"O1"}, "Fp1", 20)
	for i := range tbl.Variance {
		tbl.Variance[i] = 1
		tbl.Power[0][i] = 5
	}
	tbl.Notes[10] = fruition.RefinedLabel

	a, err := AnalyzeTables([]*fruition.PowerTable{tbl}, analyzeOptions())
	if !errors.Is(err, fruition.ErrNoWindows) {
		t.Fatalf("err = %v, want ErrNoWindows", err)
	}
	if a.Summary.DiscardedWindows != 1 || a.Summary.Curves != 1 {
		t.Fatalf("summary = %+v, want one discarded window with a curve", a.Summary)
	}
}

func TestExtractSessionWindowsOrdinals(t *testing.T) {
	tbl := fruition.NewPowerTable("s", []string{"O1", "Fp1"}, "Fp1", 40)
	for i := range tbl.Variance {
		tbl.Variance[i] = 1
		tbl.Power[0][i] = float64(i)
		tbl.Power[1][i] = 1000
	}
	tbl.Notes[2] = fruition.RefinedLabel
	tbl.Notes[20] = fruition.RefinedLabel

	opts := fruition.WindowOptions{HalfWidth: 5, MinLeadRows: 5, SmoothSpan: 3, ExcludeColumns: []string{"Fp1"}}
	sw := ExtractSessionWindows(tbl, opts, nil, nil)
	if sw.Skipped != 1 || sw.Table.Len() != 1 {
		t.Fatalf("skipped=%d kept=%d, want 1 and 1", sw.Skipped, sw.Table.Len())
	}
	col, ok := sw.Table.Column("s_Fruition_2")
	if !ok {
		t.Fatalf("expected second ordinal to survive, labels %v", sw.Table.Labels())
	}
	if col[0] != 15 || col[10] != 25 {
		t.Fatalf("window = %v", col)
	}
	if sw.Decisions[0].Status != catalog.StatusSkipped || sw.Decisions[1].Status != catalog.StatusKept {
		t.Fatalf("decisions = %+v", sw.Decisions)
	}
}

func TestDedupControlsWindowCount(t *testing.T) {
	tests := []struct {
		dedup bool
		want  int
	}{
		{dedup: true, want: 1},
		{dedup: false, want: 2},
	}
	for _, tt := range tests {
		tbl := fruition.NewPowerTable("dup", []string{"O1", "Fp1"}, "Fp1", 300)
		for i := range tbl.Variance {
			tbl.Variance[i] = 1
			tbl.Power[0][i] = 10
			tbl.Power[1][i] = 500
		}
		tbl.Variance[140] = 50
		tbl.Notes[150] = "fruition"
		tbl.Notes[152] = "Fruition again"

		refined := fruition.RefineEvents(tbl, fruition.RefineOptions{MaxLookback: 50, Dedup: tt.dedup})
		if len(refined.Events) != tt.want {
			t.Fatalf("dedup=%v: refined events = %d, want %d", tt.dedup, len(refined.Events), tt.want)
		}

		path := filepath.Join(t.TempDir(), "dup.csv")
		if err := WritePowerTableCSV(path, tbl); err != nil {
			t.Fatalf("write: %v", err)
		}
		reread, _, err := ReadPowerTableCSV(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}

		sw := ExtractSessionWindows(reread, analyzeOptions().Window, nil, nil)
		if sw.Table.Len() != tt.want || len(sw.Curves) != tt.want {
			t.Fatalf("dedup=%v: windows=%d curves=%d, want %d", tt.dedup, sw.Table.Len(), len(sw.Curves), tt.want)
		}
		for i, label := range sw.Table.Labels() {
			if label != fruition.WindowLabel("dup", i+1) {
				t.Fatalf("dedup=%v: label %d = %q", tt.dedup, i, label)
			}
		}
	}
}

func TestAnalyzeTablesKeepsCallerExclusions(t *testing.T) {
	tbl := fruition.NewPowerTable("ex", []string{"O1", "Noisy"}, "Fp1", 200)
	for i := range tbl.Variance {
		tbl.Variance[i] = 1
		tbl.Power[0][i] = 20
		tbl.Power[1][i] = 9000
	}
	tbl.Notes[100] = fruition.RefinedLabel

	opts := AnalyzeOptions{Window: fruition.WindowOptions{ExcludeColumns: []string{"Noisy"}}, NumClusters: 2}
	a, err := AnalyzeTables([]*fruition.PowerTable{tbl}, opts)
	if err == nil {
		t.Fatal("expected too few windows to cluster")
	}
	if a == nil || a.Windows.Len() != 1 {
		t.Fatalf("expected one window before clustering, got %+v", a)
	}
	col, _ := a.Windows.Column("ex_Fruition_1")
	if len(col) != 2*fruition.DefaultFruitionWindow+1 {
		t.Fatalf("window length = %d, want default geometry", len(col))
	}
	for i, v := range col {
		if v != 20 {
			t.Fatalf("offset %d = %v, want 20 with Noisy excluded", i-fruition.DefaultFruitionWindow, v)
		}
	}
}

func TestReadTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timestamps.csv")
	content := "\ufeffTime, Label\n00:05,bell\n,ignored\n1:02:03,Fruition!\n90,late\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	markers, err := ReadTimestamps(path)
	if err != nil {
		t.Fatalf("ReadTimestamps error: %v", err)
	}
	want := []fruition.EventMarker{{Second: 5, Label: "bell"}, {Second: 3723, Label: "Fruition!"}, {Second: 90, Label: "late"}}
	if len(markers) != len(want) {
		t.Fatalf("markers = %+v", markers)
	}
	for i := range want {
		if markers[i] != want[i] {
			t.Fatalf("marker %d = %+v, want %+v", i, markers[i], want[i])
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"07", 7, false},
		{"01:05", 65, false},
		{" 2:00:01 ", 7201, false},
		{"1:2:3:4", 0, true},
		{"ab:01", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPowerTableCSVRoundTripWithGap(t *testing.T) {
	tbl := fruition.NewPowerTable("sess_1", []string{"O1", "ExG 1"}, "Fp1", 4)
	for i := range tbl.Variance {
		tbl.Variance[i] = 0.125 * float64(i)
		tbl.Power[0][i] = 10.5 + float64(i)
		tbl.Power[1][i] = math.NaN()
	}
	tbl.Notes[1] = "Fruition; bell"

	dir := t.TempDir()
	path := filepath.Join(dir, "sess_1.csv")
	if err := WritePowerTableCSV(path, tbl); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows := readCSV(t, path)
	if strings.Join(rows[0], "|") != "Time (s)|Var Fp1|O1|ExG 1|notes" {
		t.Fatalf("header = %v", rows[0])
	}

	// Drop second 3.
	gapped := append(rows[:3:3], rows[4:]...)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(gapped); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, missing, err := ReadPowerTableCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SessionID != "sess_1" || got.Rows() != 4 {
		t.Fatalf("session=%s rows=%d", got.SessionID, got.Rows())
	}
	if len(missing) != 1 || missing[0] != 3 {
		t.Fatalf("missing = %v, want [3]", missing)
	}
	if !math.IsNaN(got.Power[0][2]) || got.Power[0][3] != 13.5 || got.Notes[1] != "Fruition; bell" {
		t.Fatalf("unexpected round trip: power %v notes %q", got.Power[0], got.Notes)
	}
	if !math.IsNaN(got.Power[1][0]) {
		t.Fatalf("empty cell should read back undefined, got %v", got.Power[1][0])
	}
}

func TestReadPowerTableCSVRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aligned_curves.csv")
	if err := os.WriteFile(path, []byte("label,-1,0,1\nx,1,2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadPowerTableCSV(path); err == nil {
		t.Fatal("expected a header error")
	}
}

func TestParquetExports(t *testing.T) {
	dir := t.TempDir()
	tbl := fruition.NewPowerTable("p", []string{"O1", "ExG 1"}, "Fp1", 7)
	for i := range tbl.Variance {
		tbl.Variance[i] = float64(i)
		tbl.Power[0][i] = float64(2 * i)
		tbl.Power[1][i] = 1
	}
	wt := fruition.NewWindowTable(5)
	if err := wt.Add("p_Fruition_1", []float64{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := wt.Add("p_Fruition_2", []float64{5, 4, 3, 2, 1}); err != nil {
		t.Fatal(err)
	}

	tablePath := filepath.Join(dir, "p.parquet")
	if err := writePowerTableParquet(tablePath, tbl); err != nil {
		t.Fatalf("write power table parquet: %v", err)
	}
	windowPath := filepath.Join(dir, WindowTableName+".parquet")
	if err := writeWindowTableParquet(windowPath, wt); err != nil {
		t.Fatalf("write window table parquet: %v", err)
	}

	for path, want := range map[string]int64{tablePath: 7, windowPath: 5} {
		fr, err := local.NewLocalFileReader(path)
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		pr, err := reader.NewParquetColumnReader(fr, 1)
		if err != nil {
			t.Fatalf("parquet reader %s: %v", path, err)
		}
		if got := pr.GetNumRows(); got != want {
			t.Fatalf("%s rows = %d, want %d", filepath.Base(path), got, want)
		}
		pr.ReadStop()
		fr.Close()
	}
}

func TestParquetColumnNames(t *testing.T) {
	got := parquetColumnNames([]string{"Time (s)", "ExG 1", "ExG-1", "1st", "Öz"})
	want := []string{"Time_s", "ExG_1", "ExG_1_2", "c_1st", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parquetColumnNames = %v, want %v", got, want)
		}
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}
