package main

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var clearFlags struct {
	yes bool
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored event",
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearFlags.yes, "yes", "y", false, "confirm the deletion")
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearFlags.yes {
		return errors.BadRequestf("refusing to clear the repository without --yes")
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

	deleted, err := repo.Clear(cmd.Context())
	if err != nil {
		return errors.Annotatef(err, "clear events")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events\n", deleted)
	return nil
}
