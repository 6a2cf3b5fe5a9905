package bandpower

import (
	"math"
	"testing"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

func TestDPSSTapersAreUnitNormAndConcentrated(t *testing.T) {
	tapers, err := DPSS(101, 4, 8, true)
	if err != nil {
		t.Fatalf("DPSS error: %v", err)
	}
	if len(tapers.Windows) == 0 || len(tapers.Windows) > 8 {
		t.Fatalf("got %d windows", len(tapers.Windows))
	}
	for k, win := range tapers.Windows {
		norm := 0.0
		for _, v := range win {
			norm += v * v
		}
		if math.Abs(norm-1) > 1e-9 {
			t.Fatalf("window %d has squared norm %v", k, norm)
		}
		if tapers.Ratios[k] <= 0.9 || tapers.Ratios[k] > 1+1e-9 {
			t.Fatalf("window %d concentration %v", k, tapers.Ratios[k])
		}
	}
	if tapers.Ratios[0] < 0.999 {
		t.Fatalf("first window concentration %v, want near 1", tapers.Ratios[0])
	}
	// The first Slepian window is symmetric and peaks in the middle.
	first := tapers.Windows[0]
	if math.Abs(first[10]-first[90]) > 1e-9 || first[50] < first[10] {
		t.Fatalf("first window is not a centered symmetric bump")
	}
}

func TestDPSSRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		n    int
		nw   float64
		k    int
	}{
		{name: "short", n: 1, nw: 1, k: 1},
		{name: "bandwidth", n: 10, nw: 6, k: 2},
		{name: "count", n: 10, nw: 2, k: 0},
	}
	for _, tt := range tests {
		if _, err := DPSS(tt.n, tt.nw, tt.k, true); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func sine(freq, fs float64, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func TestMultitaperSeparatesInBandFromOffBand(t *testing.T) {
	mt := NewMultitaper(DefaultTimeHalfBandwidth)
	fs := 250.0
	inBand := mt.BandPower(sine(10, fs, 251, 1), fs, Alpha)
	offBand := mt.BandPower(sine(40, fs, 251, 1), fs, Alpha)
	if !(inBand > 100*offBand) {
		t.Fatalf("alpha power of 10 Hz sine %v not well above 40 Hz sine %v", inBand, offBand)
	}

	psd, freqs := mt.PSD(sine(10, fs, 251, 1), fs)
	if len(psd) != 126 || len(freqs) != 126 {
		t.Fatalf("psd bins = %d/%d", len(psd), len(freqs))
	}
	peak := 0
	for i := range psd {
		if psd[i] > psd[peak] {
			peak = i
		}
	}
	if math.Abs(freqs[peak]-10) > 1.5 {
		t.Fatalf("psd peaks at %v Hz", freqs[peak])
	}
}

func TestEpochStartsAndDetrend(t *testing.T) {
	if got := EpochStarts(1000, 250); len(got) != 3 || got[2] != 500 {
		t.Fatalf("EpochStarts(1000,250) = %v", got)
	}
	if got := EpochStarts(1001, 250); len(got) != 4 {
		t.Fatalf("EpochStarts(1001,250) = %v", got)
	}

	seg := []float64{1, 3, 5, 7, 9}
	Detrend(seg)
	for i, v := range seg {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("detrended[%d] = %v", i, v)
		}
	}
}

func TestSecondwiseVariance(t *testing.T) {
	got, err := SecondwiseVariance([]float64{1, 3, 2, 2, 5}, 2)
	if err != nil {
		t.Fatalf("SecondwiseVariance error: %v", err)
	}
	want := []float64{1, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("variance[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func syntheticRecording(seconds int, fs float64) *fruition.Recording {
	n := seconds*int(fs) + 1
	rec := &fruition.Recording{
		SessionID:  "synthetic",
		Channels:   []string{"Fp1", "O1", "O2", "A2"},
		SampleRate: fs,
		Samples:    make([][]float64, 4),
	}
	ref := sine(3, fs, n, 5e-6)
	alpha := sine(10, fs, n, 20e-6)
	beta := sine(25, fs, n, 20e-6)
	for c := range rec.Samples {
		rec.Samples[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		rec.Samples[3][i] = ref[i]
		rec.Samples[1][i] = ref[i] + alpha[i]
		rec.Samples[2][i] = ref[i] + beta[i]
		rec.Samples[0][i] = ref[i] + float64(i%7)*1e-6
	}
	return rec
}

func TestExtractBuildsPowerTable(t *testing.T) {
	rec := syntheticRecording(4, 200)
	tbl, err := Extract(rec, DefaultOptions())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if err := tbl.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tbl.Rows() != 4 {
		t.Fatalf("rows = %d, want 4", tbl.Rows())
	}
	o1 := tbl.Power[tbl.ChannelIndex("O1")]
	o2 := tbl.Power[tbl.ChannelIndex("O2")]
	a2 := tbl.Power[tbl.ChannelIndex("A2")]
	for row := 0; row < tbl.Rows(); row++ {
		if !(o1[row] > o2[row]) {
			t.Fatalf("row %d: O1 alpha %v not above O2 %v", row, o1[row], o2[row])
		}
		if a2[row] != 0 {
			t.Fatalf("row %d: re-referenced A2 power %v, want 0", row, a2[row])
		}
		if math.IsNaN(tbl.Variance[row]) {
			t.Fatalf("row %d: variance undefined", row)
		}
	}
}

func TestExtractRequiresChannels(t *testing.T) {
	rec := syntheticRecording(2, 100)
	opts := DefaultOptions()
	opts.ReferenceChannel = "Cz"
	if _, err := Extract(rec, opts); err == nil {
		t.Fatal("missing reference accepted")
	}
	opts = DefaultOptions()
	opts.VarianceChannel = "Fp2"
	if _, err := Extract(rec, opts); err == nil {
		t.Fatal("missing variance channel accepted")
	}
}
