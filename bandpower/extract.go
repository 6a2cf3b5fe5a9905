package bandpower

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// Options configures Extract.
type Options struct {
	ReferenceChannel string
	VarianceChannel  string
	Band             Band

	// PowerScale multiplies band PSD before rounding to one decimal.
	PowerScale float64

	// VarianceScale multiplies per-second variance before rounding to three decimals.
	VarianceScale float64

	// Estimator defaults to a Multitaper with NW = 4.
	Estimator Estimator

	Logger *slog.Logger
}

// DefaultOptions returns the alpha extraction settings.
func DefaultOptions() Options {
	return Options{
		ReferenceChannel: "A2",
		VarianceChannel:  "Fp1",
		Band:             Alpha,
		PowerScale:       1e13,
		VarianceScale:    1e9,
	}
}

// Extract computes the session's power table: one row per complete one-second
// epoch, one power column per recording channel, and the per-second variance
// of the variance channel. Both are taken from the re-referenced signal.
func Extract(rec *fruition.Recording, opts Options) (*fruition.PowerTable, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if opts.Estimator == nil {
		opts.Estimator = NewMultitaper(DefaultTimeHalfBandwidth)
	}
	if opts.Band == (Band{}) {
		opts.Band = Alpha
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ref, err := Rereference(rec, opts.ReferenceChannel)
	if err != nil {
		return nil, err
	}
	varCh := ref.ChannelIndex(opts.VarianceChannel)
	if varCh < 0 {
		return nil, fmt.Errorf("recording %s: variance channel %q not found", rec.SessionID, opts.VarianceChannel)
	}

	fs := int(math.Round(ref.SampleRate))
	epochs := EpochStarts(ref.SampleCount(), fs)
	if len(epochs) == 0 {
		return nil, fmt.Errorf("recording %s: %d samples at %d Hz hold no complete epoch", rec.SessionID, ref.SampleCount(), fs)
	}

	t := fruition.NewPowerTable(rec.SessionID, ref.Channels, opts.VarianceChannel, len(epochs))
	segment := make([]float64, fs+1)
	for c, samples := range ref.Samples {
		for row, start := range epochs {
			copy(segment, samples[start:start+fs+1])
			Detrend(segment)
			p := opts.Estimator.BandPower(segment, ref.SampleRate, opts.Band)
			t.Power[c][row] = fruition.RoundTo(p*opts.PowerScale, 1)
		}
		logger.Debug("channel band power computed", "session", rec.SessionID, "channel", ref.Channels[c], "epochs", len(epochs))
	}

	variance, err := SecondwiseVariance(ref.Samples[varCh], fs)
	if err != nil {
		return nil, fmt.Errorf("recording %s: variance of %s: %w", rec.SessionID, opts.VarianceChannel, err)
	}
	for row := range t.Variance {
		if row < len(variance) {
			t.Variance[row] = fruition.RoundTo(variance[row]*opts.VarianceScale, 3)
		}
	}

	logger.Info("power table extracted",
		"session", rec.SessionID,
		"seconds", t.Rows(),
		"channels", len(t.Channels),
		"reference", opts.ReferenceChannel,
	)
	return t, nil
}

// Rereference returns a copy of rec with the reference channel subtracted
// from every channel, the reference itself included.
func Rereference(rec *fruition.Recording, channel string) (*fruition.Recording, error) {
	ri := rec.ChannelIndex(channel)
	if ri < 0 {
		return nil, fmt.Errorf("recording %s: reference channel %q not found", rec.SessionID, channel)
	}
	refSamples := rec.Samples[ri]
	out := &fruition.Recording{
		SessionID:  rec.SessionID,
		Channels:   append([]string(nil), rec.Channels...),
		SampleRate: rec.SampleRate,
		Samples:    make([][]float64, len(rec.Samples)),
	}
	for c, samples := range rec.Samples {
		row := make([]float64, len(samples))
		for i, v := range samples {
			row[i] = v - refSamples[i]
		}
		out.Samples[c] = row
	}
	return out, nil
}

// EpochStarts returns the first sample of every one-second epoch. Epoch k
// spans samples [k*fs, k*fs+fs], so only epochs ending before n are kept.
func EpochStarts(n, fs int) []int {
	if fs <= 0 {
		return nil
	}
	var starts []int
	for start := 0; start+fs < n; start += fs {
		starts = append(starts, start)
	}
	return starts
}

// Detrend removes the least-squares line from segment in place.
func Detrend(segment []float64) {
	if len(segment) < 2 {
		return
	}
	x := make([]float64, len(segment))
	for i := range x {
		x[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(x, segment, nil, false)
	for i := range segment {
		segment[i] -= alpha + beta*x[i]
	}
}

// SecondwiseVariance is the population variance of consecutive chunks of fs
// samples; the last chunk may be shorter.
func SecondwiseVariance(samples []float64, fs int) ([]float64, error) {
	if fs <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", fs)
	}
	out := make([]float64, 0, len(samples)/fs+1)
	for start := 0; start < len(samples); start += fs {
		end := min(start+fs, len(samples))
		v, err := stats.PopulationVariance(stats.Float64Data(samples[start:end]))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
