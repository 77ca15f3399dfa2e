package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tristendillon/bundlefix/core/config"
	"github.com/tristendillon/bundlefix/core/fixer"
	"github.com/tristendillon/bundlefix/core/logger"
)

var errFailed = errors.New("some bundles were not fixed completely")

var rootCmd = &cobra.Command{
	Use:   "bundlefix <bundle.app>...",
	Short: "Make macOS application bundles self-contained.",
	Long: `bundlefix copies the non-system libraries and frameworks that a bundle's
executables and plugins load into Contents/Frameworks, and rewrites every
load command to an @executable_path relative name.`,
	Args:              cobra.MinimumNArgs(1),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := false
		for _, path := range args {
			if !fixBundle(path) {
				failed = true
			}
		}
		if failed {
			return errFailed
		}
		return nil
	},
}

var logfile string
var verbose bool
var noColor bool
var configPath string

var cfg *config.Config
var logFile *os.File

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logfile, "logfile", "", "File to write logs to")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./"+config.FileName+")")
}

func setup(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)
	logger.SetColor(!noColor)
	if cmd == scanCmd && scanJSON {
		// keep stdout for the JSON document
		for level := logger.DEBUG; level <= logger.WARN; level++ {
			logger.SetWriter(level, os.Stderr)
		}
	}

	if logfile != "" {
		f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logger.SetColor(false)
		logger.AddWriterForAll(f)
	}

	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// fixBundle runs one bundle and reports whether it was fixed without errors.
func fixBundle(path string) bool {
	f, err := fixer.New(path, fixer.OptionsFromConfig(cfg))
	if err != nil {
		logger.Error("%v", err)
		return false
	}

	report := f.Run()

	logger.Info("%s: copied %d, skipped %d, rewrote %d binaries",
		path, report.Copy.Copied, report.Copy.Skipped, report.Rewrite.Rewritten)
	if report.Failed() {
		logger.Warn("%s: %d copies and %d rewrites failed", path, report.Copy.Failed, report.Rewrite.Failed)
		return false
	}
	return true
}
