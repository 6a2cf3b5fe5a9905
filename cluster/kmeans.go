// Package cluster groups event windows with k-means and rejects the single
// most distant window in principal-component space.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewWindows is returned when there are not enough windows to cluster.
var ErrTooFewWindows = errors.New("too few windows to cluster")

const (
	DefaultClusters = 2
	DefaultSeed     = 42
	DefaultMaxIter  = 300
	DefaultTol      = 1e-4
)

// KMeans is Lloyd's algorithm with greedy k-means++ seeding. Results depend
// only on the inputs and Seed.
type KMeans struct {
	K       int
	Seed    uint64
	MaxIter int
	Tol     float64 // relative to the mean per-feature variance
	NInit   int
}

// NewKMeans returns a KMeans with the default iteration settings.
func NewKMeans(k int, seed uint64) KMeans {
	return KMeans{K: k, Seed: seed, MaxIter: DefaultMaxIter, Tol: DefaultTol, NInit: 1}
}

// Model is a fitted clustering.
type Model struct {
	Labels     []int
	Centers    [][]float64
	Inertia    float64
	Iterations int
}

// NumClusters returns K.
func (km KMeans) NumClusters() int {
	return km.K
}

// Cluster fits obs and returns its labels.
func (km KMeans) Cluster(obs [][]float64) ([]int, error) {
	m, err := km.Fit(obs)
	if err != nil {
		return nil, err
	}
	return m.Labels, nil
}

// Fit clusters the rows of obs. Cluster ids are numbered in order of first
// appearance among the rows.
func (km KMeans) Fit(obs [][]float64) (*Model, error) {
	if km.K < 1 {
		return nil, fmt.Errorf("kmeans: K must be positive, got %d", km.K)
	}
	if len(obs) < km.K {
		return nil, fmt.Errorf("kmeans: %d observations for %d clusters: %w", len(obs), km.K, ErrTooFewWindows)
	}
	dim := len(obs[0])
	for i, row := range obs {
		if len(row) != dim {
			return nil, fmt.Errorf("kmeans: observation %d has %d values, want %d", i, len(row), dim)
		}
	}
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	nInit := km.NInit
	if nInit <= 0 {
		nInit = 1
	}
	tol := km.Tol
	if tol < 0 {
		tol = DefaultTol
	}
	tol *= meanFeatureVariance(obs)

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed))
	var best *Model
	for run := 0; run < nInit; run++ {
		centers := seedPlusPlus(obs, km.K, rng)
		m := lloyd(obs, centers, maxIter, tol)
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}
	relabel(best)
	return best, nil
}

func meanFeatureVariance(obs [][]float64) float64 {
	dim := len(obs[0])
	col := make([]float64, len(obs))
	total := 0.0
	for j := 0; j < dim; j++ {
		for i, row := range obs {
			col[i] = row[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return total / float64(dim)
}

func sqDist(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

// seedPlusPlus picks k initial centers, each the best of 2+ln(k) candidates
// sampled proportionally to squared distance.
func seedPlusPlus(obs [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(obs)
	trials := 2 + int(math.Log(float64(k)))
	centers := make([][]float64, 0, k)

	first := rng.IntN(n)
	centers = append(centers, append([]float64(nil), obs[first]...))
	closest := make([]float64, n)
	for i, row := range obs {
		closest[i] = sqDist(row, centers[0])
	}
	pot := floats.Sum(closest)

	cum := make([]float64, n)
	for len(centers) < k {
		floats.CumSum(cum, closest)
		bestPot := math.Inf(1)
		bestID := -1
		var bestDist []float64
		for t := 0; t < trials; t++ {
			target := rng.Float64() * pot
			id := sort.SearchFloat64s(cum, target)
			if id >= n {
				id = n - 1
			}
			dist := make([]float64, n)
			for i, row := range obs {
				dist[i] = math.Min(closest[i], sqDist(row, obs[id]))
			}
			if p := floats.Sum(dist); p < bestPot {
				bestPot, bestID, bestDist = p, id, dist
			}
		}
		centers = append(centers, append([]float64(nil), obs[bestID]...))
		closest = bestDist
		pot = bestPot
	}
	return centers
}

func assign(obs, centers [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, row := range obs {
		best := 0
		bestD := math.Inf(1)
		for c, center := range centers {
			if d := sqDist(row, center); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
		inertia += bestD
	}
	return inertia
}

func lloyd(obs, centers [][]float64, maxIter int, tol float64) *Model {
	n, k, dim := len(obs), len(centers), len(obs[0])
	labels := make([]int, n)
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++
		assign(obs, centers, labels)

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, row := range obs {
			floats.Add(next[labels[i]], row)
			counts[labels[i]]++
		}
		for c := range next {
			if counts[c] == 0 {
				// Empty cluster: move it onto the point worst served by its center.
				far, farD := 0, -1.0
				for i, row := range obs {
					if d := sqDist(row, centers[labels[i]]); d > farD {
						far, farD = i, d
					}
				}
				copy(next[c], obs[far])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		shift := 0.0
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next

		if slices.Equal(labels, prev) {
			break
		}
		copy(prev, labels)
		if shift <= tol {
			break
		}
	}

	inertia := assign(obs, centers, labels)
	return &Model{Labels: labels, Centers: centers, Inertia: inertia, Iterations: iter}
}

// relabel renumbers clusters by first appearance in Labels.
func relabel(m *Model) {
	mapping := make(map[int]int, len(m.Centers))
	for _, l := range m.Labels {
		if _, ok := mapping[l]; !ok {
			mapping[l] = len(mapping)
		}
	}
	for c := range m.Centers {
		if _, ok := mapping[c]; !ok {
			mapping[c] = len(mapping)
		}
	}
	centers := make([][]float64, len(m.Centers))
	for old, nu := range mapping {
		centers[nu] = m.Centers[old]
	}
	for i, l := range m.Labels {
		m.Labels[i] = mapping[l]
	}
	m.Centers = centers
}
