package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

func newProtectCmd() *cobra.Command {
	var owner, kind string

	cmd := &cobra.Command{
		Use:   "protect <world> <x> <y> <z>",
		Short: "Protect a block",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args)
			if err != nil {
				return err
			}
			k, err := protection.ParseKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				p, err := a.eng.Protect(cmd.Context(), owner, k, loc)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(p.Record())
				}
				fmt.Printf("Protected %s for %s (%s)\n", loc, p.Owner(), p.ID())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning player (required)")
	cmd.Flags().StringVar(&kind, "kind", "private", "protection kind: private, public or password")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newUnprotectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unprotect <protection-id>",
		Short: "Remove a protection and its roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			protID, err := id.ParseProtectionID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.eng.Unprotect(cmd.Context(), protID); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", protID)
				return nil
			})
		},
	}
}

func newTransferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <protection-id> <new-owner>",
		Short: "Hand a protection to another player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			protID, err := id.ParseProtectionID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				p, err := a.eng.Transfer(cmd.Context(), protID, args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s is now owned by %s\n", p.ID(), p.Owner())
				return nil
			})
		},
	}
}
