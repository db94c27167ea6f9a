package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath string
	debug      bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bastion",
		Short: "Block protection store and access checker",
		Long: `bastion manages block protections for game servers: who owns a block,
which players, groups or passwords may use it, and at what access level.

Examples:
  bastion migrate
  bastion protect --owner alice world 10 64 -3
  bastion grant prot_01h... player bob deposit
  bastion check --player bob --action withdraw world 10 64 -3
  bastion serve`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/bastion/bastion.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newServeCmd(),
		newProtectCmd(),
		newUnprotectCmd(),
		newTransferCmd(),
		newGrantCmd(),
		newRevokeCmd(),
		newCheckCmd(),
		newInfoCmd(),
		newHistoryCmd(),
		newStatsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
