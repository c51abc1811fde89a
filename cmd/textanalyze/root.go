// textanalyze turns a CSV of news links into oil price text factors:
//
//	textanalyze analyze [--input=<csv>] [--no-report]
//	textanalyze report [--oil-only] [--limit=<n>]
//	textanalyze report daily [--date=<YYYY-MM-DD>] [--days-back=<n>] [--max-events=<n>]
//	textanalyze graph [--format=text|dot]
//	textanalyze clear --yes
package main

import (
	"fmt"
	"os"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logJSON    bool
}

var rootCmd = &cobra.Command{
	Use:   "textanalyze",
	Short: "Oil price text factors from news articles",
	Long: "textanalyze crawls news articles, runs them through four LLM agents\n" +
		"and stores a signed oil price factor per event.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootFlags.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&rootFlags.envFile, "env-file", "", "env file loaded before the config (default .env)")
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.BoolVar(&rootFlags.logJSON, "log-json", false, "log as JSON")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.Version = version
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	level, err := log.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return errors.NotValidf("log level %q", rootFlags.logLevel)
	}
	log.SetLevel(level)
	log.SetOutput(cmd.ErrOrStderr())
	if rootFlags.logJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
