package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hashpipe-viewer",
		Short: "Follow a shared navigation position from the terminal",
		Long: `hashpipe-viewer joins a hashpipe broker and keeps a navigation
position (a fragment such as "#slide3") in sync with every other viewer.

Type next, prev or "goto #anchor" to move everyone; moves made elsewhere
are printed as they arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		watchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
