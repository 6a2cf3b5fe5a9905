package cluster

import (
	"sort"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// DefaultProfileSpan is the trailing mean span of cluster profiles.
const DefaultProfileSpan = 5

// Profile is the averaged window series of one cluster.
type Profile struct {
	Cluster int         `json:"cluster"`
	Members []string    `json:"members"`
	Mean    []float64   `json:"mean"`
	Smooth  []float64   `json:"smooth"`
	Member  [][]float64 `json:"member_smooth"`
}

// Profiles averages the columns of each cluster and smooths the result with
// a trailing mean of span values. Clusters are returned in id order.
func Profiles(t *fruition.WindowTable, assignment map[string]int, span int) []Profile {
	byCluster := make(map[int][]string)
	for _, label := range t.Labels() {
		c, ok := assignment[label]
		if !ok {
			continue
		}
		byCluster[c] = append(byCluster[c], label)
	}
	ids := make([]int, 0, len(byCluster))
	for c := range byCluster {
		ids = append(ids, c)
	}
	sort.Ints(ids)

	out := make([]Profile, 0, len(ids))
	for _, c := range ids {
		members := byCluster[c]
		mean := make([]float64, t.Length())
		p := Profile{Cluster: c, Members: members}
		for _, label := range members {
			col, _ := t.Column(label)
			for i, v := range col {
				mean[i] += v
			}
			p.Member = append(p.Member, fruition.RollingMean(col, span))
		}
		for i := range mean {
			mean[i] /= float64(len(members))
		}
		p.Mean = mean
		p.Smooth = fruition.RollingMean(mean, span)
		out = append(out, p)
	}
	return out
}
