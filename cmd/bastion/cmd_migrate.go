package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/bastion/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing Bastion tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				// Start already loaded the schema.
				for _, t := range []string{database.TableProtections, database.TableRoles, database.TableHistory} {
					fmt.Printf("%-12s %s\n", a.db.Backend().Name, a.db.Table(t))
				}
				return nil
			})
		},
	}
}
