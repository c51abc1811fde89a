package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightartw/textanalyze/analysis"
	"github.com/lightartw/textanalyze/loader"
	"github.com/lightartw/textanalyze/types"
)

var analyzeFlags struct {
	input    string
	noReport bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze every news item of the input CSV",
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.input, "input", "i", "", "input CSV (default from config)")
	f.BoolVar(&analyzeFlags.noReport, "no-report", false, "skip writing the report files")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	input := analyzeFlags.input
	if input == "" {
		input = cfg.InputFile
	}

	items, err := loader.Load(input)
	if err != nil {
		return errors.Trace(err)
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintf(out, "No valid news items in %s\n", input)
		return nil
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	analyzer, err := analysis.NewAnalyzer(cfg, repo, newCompleter(cfg), analysis.WithLogger(log.StandardLogger()))
	if err != nil {
		return errors.Trace(err)
	}

	ctx := cmd.Context()
	summary := analyzer.AnalyzeBatch(ctx, items)
	printBatch(cmd, summary)

	if analyzeFlags.noReport {
		return nil
	}
	events, err := analyzer.Collect(ctx, summary)
	if err != nil {
		return errors.Annotatef(err, "collect analysed events")
	}
	return writeReport(cmd, cfg.ReportDir, events, time.Now())
}

func printBatch(cmd *cobra.Command, summary *types.BatchSummary) {
	w := table.NewWriter()
	w.SetOutputMirror(cmd.OutOrStdout())
	w.SetStyle(table.StyleLight)
	w.SetTitle("Batch")
	w.AppendRows([]table.Row{
		{"Total", summary.Total},
		{"Success", summary.Success},
		{"Failed", summary.Failed},
		{"Duration", summary.Duration.Round(time.Millisecond)},
	})
	w.Render()

	for _, outcome := range summary.Outcomes {
		if !outcome.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "  failed %s: %s\n", outcome.ID, outcome.Error)
		}
	}
}
