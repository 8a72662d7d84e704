// Package cli implements the dailygrind command-line interface. The serve
// command runs the daemon; every other command talks to a running daemon
// over its local HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dailygrind",
	Short: "Daily forced-problem companion daemon",
	Long: `dailygrind assigns one judge problem per day from your filters,
polls the judge until it is solved and tells browser collaborators when a
tab must be redirected back to the problem. Run 'dailygrind serve' to start
the daemon, then use the other commands to inspect and control it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("addr", "", "daemon address (default from config)")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
