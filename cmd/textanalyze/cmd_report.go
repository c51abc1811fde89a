package main

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/lightartw/textanalyze/report"
	"github.com/lightartw/textanalyze/store"
)

var reportFlags struct {
	oilOnly bool
	limit   int
	since   time.Duration
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the daily report from the stored events",
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.BoolVar(&reportFlags.oilOnly, "oil-only", false, "only events related to the oil price")
	f.IntVar(&reportFlags.limit, "limit", 0, "newest events to include, 0 for all")
	f.DurationVar(&reportFlags.since, "since", 0, "only events stored within this window, 0 for all")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	now := time.Now()
	filter := &store.Filter{OilRelatedOnly: reportFlags.oilOnly}
	if reportFlags.since > 0 {
		filter.Since = now.Add(-reportFlags.since)
	}
	events, err := repo.GetAll(cmd.Context(), filter, reportFlags.limit)
	if err != nil {
		return errors.Annotatef(err, "list events")
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events stored yet.")
		return nil
	}
	return writeReport(cmd, cfg.ReportDir, events, now)
}

// writeReport prints the text report and saves it next to the raw events.
func writeReport(cmd *cobra.Command, dir string, events []*store.EventRecord, now time.Time) error {
	text := report.RenderText(report.Aggregate(events, now))
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, text)

	jsonPath, err := report.SaveJSON(dir, events, now)
	if err != nil {
		return errors.Trace(err)
	}
	textPath, err := report.SaveText(dir, text, now)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "Events saved to %s\nReport saved to %s\n", jsonPath, textPath)
	return nil
}
