package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/scamwatch-ops/internal/config"
	"github.com/rickgao/scamwatch-ops/internal/connection"
)

func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the config file, then print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAndValidate(*configPath)
			if err != nil {
				return err
			}

			// Resolve without a token so nothing secret is printed.
			streamURL, err := connection.ResolveStreamURL(cfg.Backend.Origin, cfg.Stream.Path, cfg.Stream.TokenParam, "")
			if err != nil {
				return fmt.Errorf("resolve stream url: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config %s is valid\n", *configPath)
			fmt.Fprintf(out, "  instance:   %s\n", cfg.Instance.ID)
			fmt.Fprintf(out, "  backend:    %s\n", cfg.Backend.Origin)
			fmt.Fprintf(out, "  stream:     %s (reconnect %v, heartbeat %v)\n",
				streamURL, cfg.Stream.ReconnectDelay, cfg.Stream.HeartbeatInterval)
			fmt.Fprintf(out, "  overview:   every %v\n", cfg.Sources.Overview.Interval)
			fmt.Fprintf(out, "  metrics:    every %v\n", cfg.Sources.Metrics.Interval)
			fmt.Fprintf(out, "  health:     every %v\n", cfg.Sources.Health.Interval)
			fmt.Fprintf(out, "  archive:    %t\n", cfg.Archive.Enabled)
			fmt.Fprintf(out, "  http:       :%d\n", cfg.HTTP.Port)
			return nil
		},
	}
}
