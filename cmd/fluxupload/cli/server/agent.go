package server

import (
	"context"
	"fmt"

	"github.com/mwantia/fluxupload/internal/agent"
	"github.com/spf13/cobra"

	config "github.com/mwantia/fluxupload/internal/config/server"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"agent"},
		Short:   "Start the FluxUpload agent",
		Long: `Start the FluxUpload agent.

The agent serves the upload API and periodically sweeps expired sessions
until it receives an interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			agent := agent.NewAgent(cfg)
			return agent.Serve(context.Background())
		},
	}

	cmd.Flags().String("address", "", "listen address (overrides http.address)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return bindFlag(cmd, "address", "http.address")
	}

	return cmd
}
