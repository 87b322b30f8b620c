package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mothra",
	Short: "Peer-to-peer gossip and request/response node",
	Long: `mothra runs a node of an encrypted peer-to-peer overlay. Nodes flood
gossip messages to the peers subscribed to a topic and exchange
request/response messages with single peers.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
