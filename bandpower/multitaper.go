package bandpower

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// DefaultTimeHalfBandwidth is NW of the multitaper estimate.
const DefaultTimeHalfBandwidth = 4.0

// Multitaper estimates band power with eigenvalue-weighted DPSS periodograms.
// Tapers and FFT plans are cached per segment length, so a Multitaper is
// safe for concurrent use.
type Multitaper struct {
	NW float64

	mu    sync.Mutex
	plans map[int]*taperPlan
}

type taperPlan struct {
	tapers  *Tapers
	weights []float64
	fft     *fourier.FFT
	err     error
}

// NewMultitaper returns an estimator with time-half-bandwidth nw.
func NewMultitaper(nw float64) *Multitaper {
	if nw <= 0 {
		nw = DefaultTimeHalfBandwidth
	}
	return &Multitaper{NW: nw, plans: make(map[int]*taperPlan)}
}

func (m *Multitaper) plan(n int) *taperPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plans == nil {
		m.plans = make(map[int]*taperPlan)
	}
	if p, ok := m.plans[n]; ok {
		return p
	}
	nw := m.NW
	if nw <= 0 {
		nw = DefaultTimeHalfBandwidth
	}
	k := int(math.Floor(2 * nw))
	if k < 1 {
		k = 1
	}
	p := &taperPlan{fft: fourier.NewFFT(n)}
	p.tapers, p.err = DPSS(n, nw, k, true)
	if p.err == nil {
		p.weights = append([]float64(nil), p.tapers.Ratios...)
	}
	m.plans[n] = p
	return p
}

// PSD returns the one-sided power spectral density of segment in units²/Hz
// and the frequency of each bin.
func (m *Multitaper) PSD(segment []float64, fs float64) (psd, freqs []float64) {
	n := len(segment)
	if n < 2 || fs <= 0 {
		return nil, nil
	}
	p := m.plan(n)
	if p.err != nil {
		return nil, nil
	}

	x := append([]float64(nil), segment...)
	floats.AddConst(-floats.Sum(x)/float64(n), x)

	bins := n/2 + 1
	psd = make([]float64, bins)
	tapered := make([]float64, n)
	coeffs := make([]complex128, bins)
	for k, win := range p.tapers.Windows {
		floats.MulTo(tapered, win, x)
		coeffs = p.fft.Coefficients(coeffs, tapered)
		for i, c := range coeffs {
			a := cmplx.Abs(c)
			psd[i] += p.weights[k] * a * a
		}
	}

	scale := 2 / (floats.Sum(p.weights) * fs)
	floats.Scale(scale, psd)
	psd[0] /= 2
	if n%2 == 0 {
		psd[bins-1] /= 2
	}

	freqs = make([]float64, bins)
	for i := range freqs {
		freqs[i] = p.fft.Freq(i) * fs
	}
	return psd, freqs
}

// BandPower averages the PSD over the bins inside band; NaN when none are.
func (m *Multitaper) BandPower(segment []float64, fs float64, band Band) float64 {
	psd, freqs := m.PSD(segment, fs)
	total := 0.0
	count := 0
	for i, f := range freqs {
		if band.Contains(f) {
			total += psd[i]
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return total / float64(count)
}
