package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd(flags *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the semantic project index",
		Long: `Fetch the project catalog and embed new or changed projects.

Without --force nothing happens until the refresh interval has passed since the
last successful rebuild. With --force every project is re-embedded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.resolver.SemanticConfigured() {
				fmt.Fprintln(cmd.ErrOrStderr(), "semantic search is not configured; only the catalog will be refreshed")
			}
			rep, err := a.resolver.Refresh(cmd.Context(), force)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-embed every project regardless of the refresh interval")
	return cmd
}
