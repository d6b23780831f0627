package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "venuesync",
	Short: "Offline-first venue sync engine for the Golden Gai district",
	Long: `venuesync keeps the on-device venue store, photos and venue info in step
with the remote store. Everything works offline; a sync reconciles when a
connection is available.

Configuration is read from the file named by VENUESYNC_CONFIG (default
venuesync.json) with environment variables layered on top.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
