package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "openwork",
	Short: "Autonomous task execution on your local files",
	Long: `OpenWork turns natural-language tasks into safe, bounded actions on
your machine. Each task runs in an agent loop that repeatedly asks a
language model for the next step, executes it through sandboxed tools
confined to the directories you authorize, and observes the result
until the task completes.

Core capabilities:
- Sandboxed file, shell, search and HTTP tools
- Parallel sub-agents for decomposable tasks
- Context compaction for long-running work
- Task state persisted to .openwork/state.db`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
