package cmd

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var fetch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog and index state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if fetch {
				if _, err := a.catalog.Get(cmd.Context()); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), a.resolver.Status())
		},
	}

	cmd.Flags().BoolVar(&fetch, "fetch", false, "Load the project catalog from Jira before reporting")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
