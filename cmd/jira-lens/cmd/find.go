package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/jira-lens/internal/similarity"
)

func newFindCmd(flags *rootFlags) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Resolve a project reference from the command line",
		Example: `  jira-lens find aitex
  jira-lens find "TECH AI" --limit 3
  jira-lens find '*' --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			results, err := a.resolver.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, results)
			}
			if len(results) == 0 {
				fmt.Fprintf(out, "No projects match %q\n", query)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tSCORE\tSOURCE\tCLOSE")
			for _, r := range results {
				near := ""
				if similarity.IsClose(query, r.Name, a.cfg.Search.SimilarityThreshold) {
					near = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%s\n", r.Key, r.Name, r.Score, r.Source, near)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Max results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
