package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/access"
)

func newCheckCmd() *cobra.Command {
	var (
		player    string
		groups    []string
		passwords []string
		admin     bool
		action    string
	)

	cmd := &cobra.Command{
		Use:   "check <world> <x> <y> <z>",
		Short: "Resolve a player's access to a block",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args)
			if err != nil {
				return err
			}
			req := &bastion.CheckRequest{
				Principal: access.Principal{Name: player, Groups: groups, Passwords: passwords, Admin: admin},
				Location:  loc,
				Action:    access.Action(strings.ToLower(action)),
			}
			return withApp(cmd.Context(), func(a *app) error {
				result, err := a.eng.Check(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(result)
				}
				verdict := "DENIED"
				if result.Allowed {
					verdict = "ALLOWED"
				}
				fmt.Printf("%s: %s has %s access, %s needs %s (%s)\n",
					verdict, player, result.Level, result.Action, result.Required, result.Reason)
				for _, m := range result.MatchedBy {
					fmt.Printf("  matched %s %s -> %s\n", m.Type, m.Name, m.Level)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&player, "player", "", "player name")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "group the player belongs to (repeatable)")
	cmd.Flags().StringSliceVar(&passwords, "password", nil, "password the player supplied (repeatable)")
	cmd.Flags().BoolVar(&admin, "admin", false, "apply the admin override")
	cmd.Flags().StringVar(&action, "action", string(access.ActionWithdraw), "deposit, withdraw or manage")
	return cmd
}
