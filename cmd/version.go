package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tristendillon/bundlefix/core/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version of bundlefix",
	Long:  `Displays the version of bundlefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bundlefix %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
