package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/opsdash.local.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "opsdash",
		Short: "Live data service for the scam-ops dashboard",
		Long: `opsdash keeps the scam-ops dashboard in sync with the backend: it holds
the live stream open, polls the overview, metrics and health resources, and
serves the combined state as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newCheckConfigCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}
