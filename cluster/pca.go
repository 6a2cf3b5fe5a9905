package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Project returns the coordinates of the rows of obs on their first
// components principal axes. Fewer columns are returned when the data has
// fewer axes.
func Project(obs [][]float64, components int) ([][]float64, error) {
	n := len(obs)
	if n < 2 {
		return nil, fmt.Errorf("pca: %d observations: %w", n, ErrTooFewWindows)
	}
	dim := len(obs[0])
	x := mat.NewDense(n, dim, nil)
	for i, row := range obs {
		if len(row) != dim {
			return nil, fmt.Errorf("pca: observation %d has %d values, want %d", i, len(row), dim)
		}
		x.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("pca: decomposition of %dx%d data failed", n, dim)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, axes := vecs.Dims()
	k := min(components, axes)

	// Center before projecting; PrincipalComponents does not modify x.
	for j := 0; j < dim; j++ {
		col := mat.Col(nil, j, x)
		floats.AddConst(-stat.Mean(col, nil), col)
		x.SetCol(j, col)
	}
	var proj mat.Dense
	proj.Mul(x, vecs.Slice(0, dim, 0, k))

	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, &proj)
	}
	return out, nil
}

// Norms returns the Euclidean length of each point.
func Norms(points [][]float64) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = floats.Norm(p, 2)
	}
	return out
}
