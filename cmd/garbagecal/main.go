// Command garbagecal resolves a home address to its waste collection sector,
// keeps the sector's pickup calendar cached and sends reminders before each
// pickup.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flags = struct {
		ConfigFile string
		NoColor    bool
	}{}

	root = &cobra.Command{
		Use:           "garbagecal",
		Short:         "Garbagecal keeps your waste collection calendar at hand",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.ConfigFile != "" {
				return os.Setenv("GARBAGECAL_CONFIG", flags.ConfigFile)
			}
			return nil
		},
	}
)

func init() {
	root.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "configuration file (default $XDG_CONFIG_HOME/garbagecal/config.yaml)")
	root.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newServeCmd(),
		newAddressCmd(),
		newRefreshCmd(),
		newListCmd(),
		newNextCmd(),
		newStatusCmd(),
		newCacheCmd(),
		newValidateCmd(),
	)
}

func main() {
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
