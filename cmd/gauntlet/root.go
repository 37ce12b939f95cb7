package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	casesFile   string
	targetsFile string
	verbose     bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gauntlet",
		Short: "Evaluation harness for LLM providers",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "gauntlet.yaml", "config file path")
	root.PersistentFlags().StringVar(&casesFile, "cases", "cases.json", "test case catalog path")
	root.PersistentFlags().StringVar(&targetsFile, "targets", "targets.json", "model target catalog path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newLeaderboardCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// newLogger builds the process logger honoring the verbosity flag.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
