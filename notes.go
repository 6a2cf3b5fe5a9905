package fruition

import (
	"fmt"
	"math"
	"strings"
)

// Summary aggregates one analysis run for reporting.
type Summary struct {
	Sessions           int              `json:"sessions"`
	RefinedEvents      int              `json:"refined_events"`
	Windows            int              `json:"windows"`
	SkippedEvents      int              `json:"skipped_events"`
	DiscardedWindows   int              `json:"discarded_windows"`
	Curves             int              `json:"curves"`
	AlignmentAnomalies int              `json:"alignment_anomalies"`
	HalfWidth          int              `json:"half_width"`
	Outlier            string           `json:"outlier"`
	OutlierDistance    float64          `json:"outlier_distance"`
	Clusters           []ClusterSummary `json:"clusters"`
	Warnings           []string         `json:"warnings,omitempty"`
}

// ClusterSummary describes one final cluster's averaged profile.
type ClusterSummary struct {
	Cluster    int      `json:"cluster"`
	Size       int      `json:"size"`
	Members    []string `json:"members"`
	MeanPower  float64  `json:"mean_power"`
	PeakOffset int      `json:"peak_offset_s"`
	PeakPower  float64  `json:"peak_power"`
	PrePower   float64  `json:"pre_event_power"`
	PostPower  float64  `json:"post_event_power"`
}

// BuildAnalysisNotes renders a run summary as readable text.
func BuildAnalysisNotes(s *Summary) string {
	if s == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fruition Event Analysis\n")
	fmt.Fprintf(
		&b,
		"Sessions %d | Refined events %d | Windows %d (%d discarded, %d skipped)\n",
		s.Sessions,
		s.RefinedEvents,
		s.Windows,
		s.DiscardedWindows,
		s.SkippedEvents,
	)
	fmt.Fprintf(&b, "Window span: %ds to +%ds around each event\n", -s.HalfWidth, s.HalfWidth)
	if s.Curves > 0 {
		fmt.Fprintf(&b, "Overlay curves: %d (%d could not be aligned)\n", s.Curves, s.AlignmentAnomalies)
	}
	if s.Outlier != "" {
		fmt.Fprintf(&b, "Removed outlier: %s (PCA distance %.1f)\n", s.Outlier, s.OutlierDistance)
	}

	if len(s.Clusters) > 0 {
		b.WriteString("\nClusters\n")
		for _, c := range s.Clusters {
			fmt.Fprintf(
				&b,
				"- Cluster %d: %d windows, mean alpha %.1f, peak %.1f at %+ds, pre/post %.1f / %.1f (%s)\n",
				c.Cluster+1,
				c.Size,
				c.MeanPower,
				c.PeakPower,
				c.PeakOffset,
				c.PrePower,
				c.PostPower,
				trendWord(c.PrePower, c.PostPower),
			)
		}
	}

	if len(s.Warnings) > 0 {
		b.WriteString("\nWarnings\n")
		for _, w := range s.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

func trendWord(pre, post float64) string {
	if !isFinite(pre) || !isFinite(post) || pre == 0 {
		return "no trend"
	}
	change := (post/pre - 1.0) * 100.0
	switch {
	case math.Abs(change) < 5:
		return fmt.Sprintf("flat %+.0f%%", change)
	case change > 0:
		return fmt.Sprintf("rise %+.0f%%", change)
	default:
		return fmt.Sprintf("drop %+.0f%%", change)
	}
}

// SummarizeProfile derives peak and pre/post means from a cluster's mean
// series of 2W+1 values.
func SummarizeProfile(cluster int, members []string, mean []float64) ClusterSummary {
	cs := ClusterSummary{
		Cluster:   cluster,
		Size:      len(members),
		Members:   append([]string(nil), members...),
		MeanPower: meanDefined(mean),
		PrePower:  math.NaN(),
		PostPower: math.NaN(),
	}
	if len(mean) == 0 {
		return cs
	}
	half := len(mean) / 2
	if peak := argmaxDefined(mean); peak >= 0 {
		cs.PeakOffset = peak - half
		cs.PeakPower = mean[peak]
	}
	cs.PrePower = meanDefined(mean[:half])
	cs.PostPower = meanDefined(mean[half+1:])
	return cs
}
