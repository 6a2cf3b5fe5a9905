package main

import (
	"github.com/spf13/cobra"

	fruition "github.com/lucasjlepore/fruition-analyzer"
	"github.com/lucasjlepore/fruition-analyzer/pipeline"
)

func newPreprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Extract per-second power tables from BrainVision recordings",
		Long: `Walks --in for .vhdr recordings, each with a timestamps log beside it,
and writes one power table per session plus manifest.json to --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := beginRun(ctx, s, "preprocess")
			if err != nil {
				return err
			}

			opts := preprocessOptions(s)
			opts.Catalog, opts.RunID = r.catalog, r.id
			res, err := pipeline.Preprocess(ctx, opts)
			r.finish(ctx, nil, err)
			if err != nil {
				return err
			}
			printPreprocess(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Extract, align and cluster fruition windows from power tables",
		Long: `Reads the power table CSVs in --in and writes the window table, aligned
curves, cluster assignments and profiles, and a run summary to --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := beginRun(ctx, s, "analyze")
			if err != nil {
				return err
			}

			opts := analyzeOptions(s)
			opts.Catalog, opts.RunID = r.catalog, r.id
			res, err := pipeline.Analyze(ctx, opts)
			r.finish(ctx, summaryOf(res), err)
			if err != nil {
				return err
			}
			printAnalyze(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Preprocess recordings and analyze the resulting power tables",
		Long: `Runs preprocess into --out and analyze from --out into --out/analysis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := beginRun(ctx, s, "run")
			if err != nil {
				return err
			}

			pre := preprocessOptions(s)
			pre.Catalog, pre.RunID = r.catalog, r.id
			an := analyzeOptions(s)
			an.InputDir, an.OutDir = "", ""

			res, err := pipeline.Run(ctx, pre, an)
			var summary *fruition.Summary
			if res != nil {
				summary = summaryOf(res.Analyze)
			}
			r.finish(ctx, summary, err)
			if err != nil {
				return err
			}
			printPreprocess(cmd.OutOrStdout(), res.Preprocess)
			printAnalyze(cmd.OutOrStdout(), res.Analyze)
			return nil
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func summaryOf(res *pipeline.AnalyzeResult) *fruition.Summary {
	if res == nil {
		return nil
	}
	return res.Summary
}
