package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tristendillon/bundlefix/core/fixer"
	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/models"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan <bundle.app>...",
	Short: "Print the copy and rename plans without changing anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		views := make(map[string]models.PlanView)
		failed := false

		for _, path := range args {
			f, err := fixer.New(path, fixer.OptionsFromConfig(cfg))
			if err != nil {
				logger.Error("%v", err)
				failed = true
				continue
			}
			plan := f.Scan()

			if scanJSON {
				views[f.Bundle.Root] = plan.View()
				continue
			}
			printPlan(f, plan)
		}

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(views); err != nil {
				return fmt.Errorf("failed to encode plan: %w", err)
			}
		}
		if failed {
			return errFailed
		}
		return nil
	},
}

func printPlan(f *fixer.Fixer, plan *models.Plan) {
	logger.Info("%s", f.Bundle.Root)
	logger.Info("Copy plan (%d):", plan.Copies.Len())
	for _, c := range plan.Copies.Entries() {
		logger.Info("  %s => %s", c.Source, c.Name)
	}
	logger.Info("Rename plan (%d buckets):", plan.Renames.Len())
	for _, b := range plan.Renames.Buckets() {
		logger.Info("  %s (id %s)", b.Key, b.SelfID)
		for _, r := range b.Renames {
			logger.Info("    %s => %s", r.Old, r.New)
		}
	}
	logger.Info("Dependency tree:")
	f.Graph().Print(logger.INFO)
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the plans as JSON")
	rootCmd.AddCommand(scanCmd)
}
