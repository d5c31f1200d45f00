// Package cmd provides the forumctl commands. forumctl drives a running forum
// service over its HTTP API.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAddr = "http://localhost:8014"

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	addr    string
	token   string
	timeout time.Duration
	json    bool
}

// NewRootCmd creates the root command for the forumctl CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "forumctl",
		Short: "Search and maintain the forum index",
		Long: `forumctl talks to a running forum service.

It runs searches the way the storefront does and drives index maintenance:
indexing or deleting single posts and rebuilding the whole index.

Maintenance commands need the service's admin token, passed with --token or
the FORUM_ADMIN_TOKEN environment variable.`,
		SilenceUsage: true,
	}

	addr := os.Getenv("FORUM_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	cmd.PersistentFlags().StringVar(&opts.addr, "addr", addr, "Forum service base URL (env FORUM_ADDR)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("FORUM_ADMIN_TOKEN"), "Admin bearer token (env FORUM_ADMIN_TOKEN)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print the raw JSON response")

	cmd.AddCommand(
		newSearchCmd(opts),
		newIndexCmd(opts),
		newReindexCmd(opts),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
