package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

func newGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <protection-id> <player|group|password> <name> <deposit|full>",
		Short: "Grant a player, group or password access",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			protID, err := id.ParseProtectionID(args[0])
			if err != nil {
				return err
			}
			typ, err := protection.ParseRoleType(args[1])
			if err != nil {
				return err
			}
			level, err := access.ParseLevel(args[3])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				r, err := a.eng.Grant(cmd.Context(), protID, typ, args[2], level)
				if err != nil {
					return err
				}
				fmt.Printf("Granted %s %s on %s\n", r.Type(), r.Access(), protID)
				return nil
			})
		},
	}
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <protection-id> <player|group|password> <name>",
		Short: "Revoke a role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			protID, err := id.ParseProtectionID(args[0])
			if err != nil {
				return err
			}
			typ, err := protection.ParseRoleType(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.eng.Revoke(cmd.Context(), protID, typ, args[2]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s role on %s\n", typ, protID)
				return nil
			})
		},
	}
}
