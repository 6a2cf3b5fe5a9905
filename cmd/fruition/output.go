package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/lucasjlepore/fruition-analyzer/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Width(20)

	warnStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
)

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s%v\n", labelStyle.Render(label), value)
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintln(w, warnStyle.Render("warning: ")+msg)
	}
}

func printPreprocess(w io.Writer, res *pipeline.PreprocessResult) {
	fmt.Fprintln(w, titleStyle.Render("preprocess complete"))
	printField(w, "output dir", res.OutputDir)
	printField(w, "manifest.json", res.ManifestPath)
	for _, s := range res.Sessions {
		printField(w, s.SessionID, fmt.Sprintf("%ds, %d mentions, %d refined events", s.Seconds, s.Mentions, s.RefinedEvents))
	}
	for _, s := range res.Skipped {
		printField(w, s.SessionID, "skipped: "+s.Reason)
	}
	printWarnings(w, res.Warnings)
}

func printAnalyze(w io.Writer, res *pipeline.AnalyzeResult) {
	sum := res.Summary
	fmt.Fprintln(w, titleStyle.Render("analyze complete"))
	printField(w, "output dir", res.OutputDir)
	printField(w, "windows", fmt.Sprintf("%d kept, %d discarded, %d skipped", sum.Windows, sum.DiscardedWindows, sum.SkippedEvents))
	printField(w, "removed outlier", fmt.Sprintf("%s (%.1f)", sum.Outlier, sum.OutlierDistance))
	for _, c := range sum.Clusters {
		printField(w, fmt.Sprintf("cluster %d", c.Cluster+1), fmt.Sprintf("%d windows, peak %.1f at %+ds", c.Size, c.PeakPower, c.PeakOffset))
	}
	printField(w, "window table", res.WindowTablePath)
	printField(w, "aligned curves", res.AlignedCurvesPath)
	printField(w, "assignments", res.AssignmentsPath)
	printField(w, "profiles", res.ProfilesPath)
	printField(w, "notes", res.NotesPath)
	if res.DecisionsPath != "" {
		printField(w, "decisions", res.DecisionsPath)
	}
	printWarnings(w, sum.Warnings)
}
