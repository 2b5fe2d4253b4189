package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at release time via -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Supervisor for local text and image inference servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Configuration file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (overrides config)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the inferd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "inferd", version)
		},
	})
	return root
}
