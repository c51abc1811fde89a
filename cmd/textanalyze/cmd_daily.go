package main

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightartw/textanalyze/analysis"
	"github.com/lightartw/textanalyze/report"
)

var dailyFlags struct {
	date       string
	daysBack   int
	maxEvents  int
	oilOnly    bool
	noDetailed bool
	noSummary  bool
	outputDir  string
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Write the daily market report with short and long term risk",
	RunE:  runDaily,
}

func init() {
	f := dailyCmd.Flags()
	f.StringVar(&dailyFlags.date, "date", "", "report date as YYYY-MM-DD (default today)")
	f.IntVar(&dailyFlags.daysBack, "days-back", 0, "event days to look at, ending on the report date (default from config)")
	f.IntVar(&dailyFlags.maxEvents, "max-events", 0, "most events to analyse (default from config)")
	f.BoolVar(&dailyFlags.oilOnly, "oil-only", true, "only events related to the oil price")
	f.BoolVar(&dailyFlags.noDetailed, "no-detailed", false, "skip the full text report")
	f.BoolVar(&dailyFlags.noSummary, "no-summary", false, "skip the summary report")
	f.StringVar(&dailyFlags.outputDir, "output-dir", "", "report directory (default from config)")
	reportCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, _ []string) error {
	req := analysis.DailyRequest{
		DaysBack:       dailyFlags.daysBack,
		MaxEvents:      dailyFlags.maxEvents,
		OilRelatedOnly: dailyFlags.oilOnly,
	}
	if dailyFlags.date != "" {
		date, err := time.Parse(report.DateLayout, dailyFlags.date)
		if err != nil {
			return errors.NotValidf("date %q, want YYYY-MM-DD", dailyFlags.date)
		}
		req.Date = date
	}
	if req.DaysBack < 0 || req.MaxEvents < 0 {
		return errors.NotValidf("negative --days-back or --max-events")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
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
	daily, err := analyzer.Daily(cmd.Context(), req)
	if err != nil {
		return errors.Trace(err)
	}

	now := time.Now()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.RenderDailySummary(daily, now))

	dir := dailyFlags.outputDir
	if dir == "" {
		dir = cfg.ReportDir
	}
	files, err := report.SaveDaily(dir, daily,
		cfg.Daily.Detailed && !dailyFlags.noDetailed,
		cfg.Daily.Summary && !dailyFlags.noSummary, now)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "Report data saved to %s\n", files.JSON)
	if files.Text != "" {
		fmt.Fprintf(out, "Full report saved to %s\n", files.Text)
	}
	if files.Summary != "" {
		fmt.Fprintf(out, "Summary saved to %s\n", files.Summary)
	}
	return nil
}
