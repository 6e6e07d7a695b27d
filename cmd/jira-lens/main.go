// Command jira-lens resolves loose Jira project references over MCP.
package main

import (
	"os"

	"github.com/golovatskygroup/jira-lens/cmd/jira-lens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
