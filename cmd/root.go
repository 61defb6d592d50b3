// Package cmd defines and implements the CLI commands for the
// substack-archiver executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "substack-archiver",
		Short: "Incrementally archives newsletter posts as Markdown",
		Long: `substack-archiver discovers the posts of one or more newsletter
sites, fetches the ones not yet archived, converts them to Markdown
with stable sequential numbering, and records per-site crawl state so
later runs only pick up new posts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults and env vars apply without one)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point. It runs the CLI and maps failures
// onto a non-zero exit status.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
