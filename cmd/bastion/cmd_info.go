package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <world> <x> <y> <z>",
		Short: "Show the protection on a block",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				p, err := a.eng.Find(cmd.Context(), loc)
				if err != nil {
					return err
				}
				rec := p.Record()
				if jsonOutput {
					return printJSON(rec)
				}
				fmt.Printf("ID:       %s\n", rec.ID)
				fmt.Printf("Owner:    %s\n", rec.Owner)
				fmt.Printf("Kind:     %s\n", rec.Kind)
				fmt.Printf("Location: %s\n", rec.Location)
				fmt.Printf("Created:  %s\n", humanize.Time(rec.CreatedAt))
				fmt.Printf("Updated:  %s\n", humanize.Time(rec.UpdatedAt))
				fmt.Printf("Roles:    %d\n", len(rec.Roles))
				for _, r := range rec.Roles {
					name := r.Name
					if r.Type == protection.PasswordRole {
						name = "********"
					}
					fmt.Printf("  %-8s %-20s %s\n", r.Type, name, r.Access)
				}
				return nil
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <protection-id>",
		Short: "Show what happened to a protection, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			protID, err := id.ParseProtectionID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				entries, err := a.eng.History(cmd.Context(), protID, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(entries)
				}
				for _, e := range entries {
					fmt.Printf("%-16s %-12s %-12s %s\n", humanize.Time(e.CreatedAt), e.Principal, e.Action, e.Detail)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	return cmd
}
