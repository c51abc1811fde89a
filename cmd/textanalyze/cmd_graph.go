package main

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/lightartw/textanalyze/analysis"
	"github.com/lightartw/textanalyze/runtime"
	"github.com/lightartw/textanalyze/store/mem"
)

var graphFlags struct {
	format string
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the analysis pipeline",
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&graphFlags.format, "format", "f", "text", "output format: text or dot")
}

func runGraph(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// the graph does not depend on the repository nor the completer
	analyzer, err := analysis.NewAnalyzer(cfg, mem.NewMemStore(), newCompleter(cfg))
	if err != nil {
		return errors.Trace(err)
	}

	out := cmd.OutOrStdout()
	switch graphFlags.format {
	case "text":
		fmt.Fprint(out, runtime.Describe(analyzer.Pipeline()))
	case "dot":
		dot, err := runtime.Render(analyzer.Pipeline(), nil)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintln(out, dot)
	default:
		return errors.NotValidf("format %q", graphFlags.format)
	}
	return nil
}
