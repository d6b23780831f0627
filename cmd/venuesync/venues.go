package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/spf13/cobra"
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "List venues in the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		visited, _ := cmd.Flags().GetBool("visited")
		sortBy, _ := cmd.Flags().GetString("sort")

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()

			var (
				venues []*models.Venue
				err    error
			)
			switch {
			case tag != "":
				venues, err = a.venues.ListByTag(ctx, tag)
			case visited:
				venues, err = a.venues.ListVisited(ctx)
			default:
				venues, err = a.venues.List(ctx, models.ParseVenueSort(sortBy))
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tGRID\tVISITED\tTAGS")
			for _, v := range venues {
				visitedAt := "-"
				if v.VisitedAt != nil {
					visitedAt = v.VisitedAt.Local().Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%d,%d\t%s\t%s\n",
					v.ID, displayName(v), v.Grid.Row, v.Grid.Column, visitedAt, strings.Join(v.Tags, ","))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d venues\n", len(venues))
			return nil
		})
	},
}

func init() {
	venuesCmd.Flags().String("tag", "", "Only venues with this tag")
	venuesCmd.Flags().Bool("visited", false, "Only visited venues")
	venuesCmd.Flags().String("sort", "name", "Sort by name, grid, visited or synced")
	rootCmd.AddCommand(venuesCmd)
}

func displayName(v *models.Venue) string {
	if v.NameLocalized == "" {
		return v.Name
	}
	return v.Name + " (" + v.NameLocalized + ")"
}
