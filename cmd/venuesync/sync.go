package main

import (
	"fmt"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync and print the outcome",
	Long: `Run a single sync against the remote store.

A full sync pushes every venue; --incremental pushes only venues changed since
the last successful sync. Rejected items do not abort the run: the outcome
reports them and the watermark is left in place so they are retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		incremental, _ := cmd.Flags().GetBool("incremental")
		return withApp(cmd.Context(), func(a *app) error {
			run := a.sync.FullSync
			if incremental {
				run = a.sync.IncrementalSync
			}

			outcome, err := run(cmd.Context())
			if outcome != nil {
				printOutcome(cmd, outcome)
			}
			if err != nil {
				return err
			}

			return outcome.Err()
		})
	},
}

func init() {
	syncCmd.Flags().Bool("incremental", false, "Only push venues changed since the last sync")
	rootCmd.AddCommand(syncCmd)
}

func printOutcome(cmd *cobra.Command, outcome *models.SyncOutcome) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s sync finished in %s\n", outcome.Mode, outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
	for _, p := range outcome.Phases {
		fmt.Fprintf(out, "  %-10s %d of %d synced", p.Phase, p.Successful, p.Requested)
		if p.Failed > 0 {
			fmt.Fprintf(out, ", %d failed", p.Failed)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, outcome.State.StatusText())
}
