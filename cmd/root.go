// Package cmd is cliptransfer's command-line surface. It replaces the
// teacher's bufio.Reader REPL (internal/cmd.CLI) with a github.com/spf13/cobra
// command tree — cobra and its companion github.com/spf13/pflag are already
// present in the example pack's dependency graph, just never wired to a
// command of their own, so this promotes cobra from indirect to direct;
// pflag stays an indirect dependency pulled in through cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cliptransfer/internal/applog"
	"cliptransfer/internal/config"
)

var (
	logger *applog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cliptransfer",
	Short: "Send and receive files over a shared clipboard",
	Long: "cliptransfer chunks a file or folder into text packets and publishes them\n" +
		"through the system clipboard, for environments where clipboard sync is\n" +
		"the only channel available between two machines.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger = applog.Default
		cfg = config.Load(logger)
		if level, ok := applog.ParseLevel(cfg.LogLevel()); ok {
			logger.SetLevel(level)
		}
		return nil
	},
}

// Execute runs the CLI, matching the shape of goshare's root main.go
// (a one-line dispatch into the cmd package) but through cobra's own
// Execute entry point instead of Prerun's hand-rolled context/waitgroup
// plumbing.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(sendCmd, listenCmd, tasksCmd, configCmd)
}
