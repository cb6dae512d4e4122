package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "termchat",
	Short: "Terminal chat broker and client",
	Long: `termchat is a multi-user chat broker speaking a line-framed text protocol
over TCP, with an optional WebSocket gateway and HTTP status endpoints.

Available commands:
  serve      Run the broker
  connect    Join a broker from the terminal
  version    Print the version

Use "termchat [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
