package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tristendillon/bundlefix/core/bundle"
	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <bundle.app>",
	Short: "Fix a bundle and fix it again whenever its binaries change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundle.Open(args[0])
		if err != nil {
			return err
		}

		fw, err := watcher.NewFileWatcher(
			b.Contents,
			[]string{b.MacOS, b.PlugIns},
			[]string{"Frameworks"},
			cfg.Watch.Debounce,
		)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}

		run := func() error {
			if !fixBundle(b.Root) {
				return fmt.Errorf("%s was not fixed completely", b.Root)
			}
			return nil
		}
		fw.FileWatcher.AddOnStartFunc(run)
		fw.FileWatcher.AddOnChangeFunc(run)
		fw.FileWatcher.AddOnCloseFunc(func() error {
			logger.Info("Stopped watching %s", b.Root)
			return nil
		})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			if err := fw.Close(); err != nil {
				logger.Error("failed to close watcher: %v", err)
			}
		}()

		logger.Info("Watching %s (Ctrl-C to stop)", b.Root)
		return fw.Watch()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
