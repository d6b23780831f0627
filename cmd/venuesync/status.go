package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()

			count, err := a.venues.Count(ctx)
			if err != nil {
				return err
			}
			usage, err := a.media.Usage(ctx)
			if err != nil {
				return err
			}
			state := a.sync.State()
			now := time.Now()

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"remote":     a.gateway.Mode(),
					"venues":     count,
					"sync":       state,
					"syncDue":    a.sync.ShouldAutoSync(now),
					"mediaBytes": usage.TotalBytes,
					"photos":     len(usage.VenueIDs),
					"pending":    usage.Pending,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Remote:   %s\n", a.gateway.Mode())
			fmt.Fprintf(out, "Venues:   %d\n", count)
			fmt.Fprintf(out, "Sync:     %s\n", a.sync.StatusText())
			if age, ok := a.sync.TimeSinceLastSync(now); ok {
				fmt.Fprintf(out, "          %s ago", age.Round(time.Second))
				if a.sync.ShouldAutoSync(now) {
					fmt.Fprint(out, " (due)")
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Photos:   %d stored locally, %d bytes\n", len(usage.VenueIDs), usage.TotalBytes)
			fmt.Fprintf(out, "Pending:  %d awaiting upload\n", len(usage.Pending))
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
