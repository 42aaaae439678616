package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "enghealth",
		Short:         "Enghealth runs engineering-health analysis modules and aggregates their reports",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("root", ".", "project root containing scripts/, data/ and figures/")
	persistent.String("config", "", "config file (default <root>/.enghealth.yml)")
	persistent.BoolP("verbose", "v", false, "enable debug logging")
	persistent.String("format", "pretty", "output format (pretty|json)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}
