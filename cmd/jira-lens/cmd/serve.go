package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/jira-lens/internal/server"
	"github.com/golovatskygroup/jira-lens/internal/tools"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, flags)
		},
	}
}

// runServe never writes to stdout itself: stdout carries JSON-RPC only.
func runServe(ctx context.Context, cmd *cobra.Command, flags *rootFlags) error {
	a, err := loadApp(flags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	handler := tools.NewHandler(a.resolver, a.catalog, a.logger)
	srv := server.New(handler, server.Options{
		In:      os.Stdin,
		Out:     os.Stdout,
		Version: Version,
		Logger:  a.logger,
	})
	return srv.Run(ctx)
}
