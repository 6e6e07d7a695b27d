// Package cmd provides the CLI commands for jira-lens.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command. Without a subcommand it serves MCP over stdio.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "jira-lens",
		Short: "Resolve loose Jira project references over MCP",
		Long: `jira-lens is an MCP server that turns approximate project references
("aitex", "TECH AI", "москва") into Jira project keys.

It combines an embedding index with typo-tolerant and transliteration-aware
matching over the cached project catalog.`,
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, flags)
		},
	}
	cmd.SetVersionTemplate("jira-lens version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newFindCmd(flags))
	cmd.AddCommand(newReindexCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))

	return cmd
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
