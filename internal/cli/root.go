// Package cli implements the chatter command line using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatter",
	Short: "chatter — brokerless gossip chat",
	Long: `chatter is a peer-to-peer chat. Every peer relays what it hears to the
peers it knows, so a message floods the whole network without a server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
