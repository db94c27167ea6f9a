package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show protection and database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				s, err := a.eng.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(s)
				}
				fmt.Printf("Protections:  %s\n", humanize.Comma(s.Protections))
				if db := s.Database; db != nil {
					fmt.Printf("Backend:      %s (connected: %t)\n", db.Backend, db.Connected)
					fmt.Printf("Queries:      %s (%s/s)\n", humanize.Comma(db.Queries), humanize.FormatFloat("#,###.##", db.QueriesPerSecond))
					fmt.Printf("Prepares:     %s\n", humanize.Comma(db.Prepares))
					fmt.Printf("Failures:     %s\n", humanize.Comma(db.Failures))
					fmt.Printf("Dropped:      %s\n", humanize.Comma(db.Dropped))
					fmt.Printf("Statements:   %d cached, %s hits, %s misses\n",
						db.StatementCache.Size, humanize.Comma(db.StatementCache.Hits), humanize.Comma(db.StatementCache.Misses))
					fmt.Printf("Connections:  %d open, %d in use, %d idle\n", db.OpenConnections, db.InUse, db.Idle)
				}
				return nil
			})
		},
	}
}
