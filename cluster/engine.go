package cluster

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// Clusterer assigns a cluster id to each observation.
type Clusterer interface {
	NumClusters() int
	Cluster(obs [][]float64) ([]int, error)
}

// Engine clusters all windows, drops the one farthest from the origin in
// principal-component space, and clusters the rest again.
type Engine struct {
	Clusterer  Clusterer
	Components int
	Logger     *slog.Logger
}

// NewEngine returns an engine with seeded k-means and two components.
func NewEngine(k int, seed uint64, logger *slog.Logger) *Engine {
	return &Engine{Clusterer: NewKMeans(k, seed), Components: 2, Logger: logger}
}

// Result holds the three phases of one engine run.
type Result struct {
	Labels          []string    `json:"labels"`
	Initial         []int       `json:"initial_clusters"`
	Projection      [][]float64 `json:"projection"`
	Distances       []float64   `json:"distances"`
	OutlierIndex    int         `json:"outlier_index"`
	Outlier         string      `json:"outlier"`
	OutlierDistance float64     `json:"outlier_distance"`
	Remaining       []string    `json:"remaining"`
	Final           []int       `json:"final_clusters"`
	CleanProjection [][]float64 `json:"clean_projection"`
}

// Assignment maps each remaining window to its final cluster.
func (r *Result) Assignment() map[string]int {
	out := make(map[string]int, len(r.Remaining))
	for i, label := range r.Remaining {
		out[label] = r.Final[i]
	}
	return out
}

// Run executes the engine on every column of t. Exactly one column is
// removed. At least K+1 columns are required.
func (e *Engine) Run(t *fruition.WindowTable) (*Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	components := e.Components
	if components <= 0 {
		components = 2
	}
	k := e.Clusterer.NumClusters()
	if t.Len() < k+1 {
		return nil, fmt.Errorf("cluster %d windows into %d clusters with one outlier removed: %w", t.Len(), k, ErrTooFewWindows)
	}

	labels := t.Labels()
	obs := t.Observations()
	initial, err := e.Clusterer.Cluster(obs)
	if err != nil {
		return nil, fmt.Errorf("initial clustering: %w", err)
	}

	proj, err := Project(obs, components)
	if err != nil {
		return nil, fmt.Errorf("outlier projection: %w", err)
	}
	dist := Norms(proj)
	outlier := floats.MaxIdx(dist)
	logger.Info("removing outlier window", "label", labels[outlier], "distance", dist[outlier])

	clean := t.Without(labels[outlier])
	cleanObs := clean.Observations()
	final, err := e.Clusterer.Cluster(cleanObs)
	if err != nil {
		return nil, fmt.Errorf("final clustering: %w", err)
	}
	cleanProj, err := Project(cleanObs, components)
	if err != nil {
		return nil, fmt.Errorf("clean projection: %w", err)
	}

	return &Result{
		Labels:          labels,
		Initial:         initial,
		Projection:      proj,
		Distances:       dist,
		OutlierIndex:    outlier,
		Outlier:         labels[outlier],
		OutlierDistance: dist[outlier],
		Remaining:       clean.Labels(),
		Final:           final,
		CleanProjection: cleanProj,
	}, nil
}
