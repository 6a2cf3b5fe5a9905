package fruition

import (
	"math"
	"strings"
	"testing"
)

func TestPowerTableValidate(t *testing.T) {
	tbl := NewPowerTable("s", []string{"O1"}, "Fp1", 5)
	if err := tbl.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	tbl.Seconds[3] = 10
	if err := tbl.Validate(); err == nil {
		t.Fatal("gap in seconds accepted")
	}
}

func TestMergeAnnotations(t *testing.T) {
	tbl := NewPowerTable("s", []string{"O1"}, "Fp1", 10)
	unmatched := tbl.MergeAnnotations([]EventMarker{
		{Second: 5, Label: "fruition"},
		{Second: 2, Label: " start "},
		{Second: 5, Label: "bell"},
		{Second: 500, Label: "late"},
	})
	if len(unmatched) != 1 || unmatched[0].Second != 500 {
		t.Fatalf("unmatched = %+v", unmatched)
	}
	if tbl.Notes[1] != "start" {
		t.Fatalf("row 1 note = %q", tbl.Notes[1])
	}
	if tbl.Notes[4] != "fruition; bell" {
		t.Fatalf("row 4 note = %q", tbl.Notes[4])
	}
}

func TestHeaderAndSelectChannels(t *testing.T) {
	tbl := NewPowerTable("s", []string{"O1", "Fp1", "A2"}, "Fp1", 1)
	header := tbl.Header()
	want := []string{TimeColumn, "Var Fp1", "O1", "Fp1", "A2", NotesColumn}
	if len(header) != len(want) {
		t.Fatalf("header = %v", header)
	}
	for i := range want {
		if header[i] != want[i] {
			t.Fatalf("header[%d] = %q, want %q", i, header[i], want[i])
		}
	}
	if got := tbl.SelectChannels([]string{"Fp1", "A2"}); len(got) != 1 || got[0] != 0 {
		t.Fatalf("SelectChannels = %v", got)
	}
}

func TestRoundingAndRollingMeans(t *testing.T) {
	if RoundTo(2.5, 0) != 2 || RoundTo(3.5, 0) != 4 || RoundTo(1.25, 1) != 1.2 {
		t.Fatal("RoundTo is not half-to-even")
	}
	vals := []float64{1, 2, 3, 4, 5}
	rolled := RollingMean(vals, 2)
	if !math.IsNaN(rolled[0]) || rolled[1] != 1.5 || rolled[4] != 4.5 {
		t.Fatalf("RollingMean = %v", rolled)
	}
	centered := CenteredRollingMean(vals, 2)
	if centered[0] != 1.5 || !math.IsNaN(centered[4]) {
		t.Fatalf("CenteredRollingMean = %v", centered)
	}
}

func TestSummarizeProfileAndNotes(t *testing.T) {
	cs := SummarizeProfile(0, []string{"a", "b"}, []float64{1, 5, 2})
	if cs.Size != 2 || cs.PeakOffset != 0 || cs.PeakPower != 5 || cs.PrePower != 1 || cs.PostPower != 2 {
		t.Fatalf("SummarizeProfile = %+v", cs)
	}
	notes := BuildAnalysisNotes(&Summary{
		Sessions:  2,
		Windows:   6,
		HalfWidth: 50,
		Outlier:   "s02_Fruition_3",
		Clusters:  []ClusterSummary{cs},
		Warnings:  []string{"s03: missing timestamps"},
	})
	for _, want := range []string{"Removed outlier: s02_Fruition_3", "Cluster 1: 2 windows", "s03: missing timestamps"} {
		if !strings.Contains(notes, want) {
			t.Fatalf("notes missing %q:\n%s", want, notes)
		}
	}
	if BuildAnalysisNotes(nil) != "" {
		t.Fatal("nil summary rendered notes")
	}
}
