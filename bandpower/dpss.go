package bandpower

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tapers is a set of unit-norm discrete prolate spheroidal sequences.
type Tapers struct {
	N       int
	Windows [][]float64
	Ratios  []float64 // spectral concentration of each window
}

// DPSS computes up to k Slepian windows of length n with time-half-bandwidth
// nw. With lowBias set, windows concentrating no more than 0.9 of their energy
// in band are dropped; the most concentrated window is always kept.
func DPSS(n int, nw float64, k int, lowBias bool) (*Tapers, error) {
	if n < 2 {
		return nil, fmt.Errorf("dpss: length %d too short", n)
	}
	if nw <= 0 || nw >= float64(n)/2 {
		return nil, fmt.Errorf("dpss: time-half-bandwidth %v out of range for length %d", nw, n)
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("dpss: %d windows requested for length %d", k, n)
	}

	w := nw / float64(n)
	cos2w := math.Cos(2 * math.Pi * w)

	// Tridiagonal form of the concentration problem (Percival and Walden).
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		c := (float64(n-1) - 2*float64(i)) / 2
		sym.SetSym(i, i, c*c*cos2w)
		if i > 0 {
			sym.SetSym(i-1, i, float64(i)*float64(n-i)/2)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("dpss: eigendecomposition of length %d failed", n)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	kernel := sincKernel(n, w)
	t := &Tapers{N: n}
	// Eigenvalues are ascending; the leading windows are the last columns.
	for j := 0; j < k; j++ {
		col := n - 1 - j
		win := mat.Col(nil, col, &vecs)
		floats.Scale(1/floats.Norm(win, 2), win)
		orient(win, j)
		ratio := concentration(win, kernel)
		if lowBias && ratio <= 0.9 && len(t.Windows) > 0 {
			continue
		}
		t.Windows = append(t.Windows, win)
		t.Ratios = append(t.Ratios, ratio)
	}
	return t, nil
}

// sincKernel returns the first row of the Toeplitz band-limiting matrix.
func sincKernel(n int, w float64) []float64 {
	a := make([]float64, n)
	a[0] = 2 * w
	for d := 1; d < n; d++ {
		a[d] = math.Sin(2*math.Pi*w*float64(d)) / (math.Pi * float64(d))
	}
	return a
}

// concentration is v'Av for the band-limiting matrix A.
func concentration(v, kernel []float64) float64 {
	total := kernel[0] * floats.Dot(v, v)
	for d := 1; d < len(v); d++ {
		total += 2 * kernel[d] * floats.Dot(v[:len(v)-d], v[d:])
	}
	return total
}

// orient fixes the eigenvector sign: symmetric windows sum positive, the
// antisymmetric ones start rising.
func orient(win []float64, order int) {
	if order%2 == 0 {
		if floats.Sum(win) < 0 {
			floats.Scale(-1, win)
		}
		return
	}
	half := len(win) / 2
	ramp := 0.0
	for i := 0; i < half; i++ {
		ramp += float64(half-i) * win[i]
	}
	if ramp > 0 {
		floats.Scale(-1, win)
	}
}
