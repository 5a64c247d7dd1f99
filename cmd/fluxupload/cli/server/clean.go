package server

import (
	"context"
	"fmt"

	"github.com/mwantia/fluxupload/internal/agent"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/spf13/cobra"

	config "github.com/mwantia/fluxupload/internal/config/server"
)

func NewCleanCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired upload sessions",
		Long: `Remove expired and settled upload sessions together with their chunk files.

Sessions stuck in assembly beyond upload.stuck_assembly_timeout are marked
failed first. Use --dry-run to only count what would be affected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			ctx := context.Background()
			logger := log.NewLoggerService("clean", cfg.Log)

			st, err := agent.OpenStore(ctx, cfg.Metadata, true)
			if err != nil {
				return err
			}
			defer st.Close()

			manager, err := agent.NewManager(cfg.Upload, st, nil, logger)
			if err != nil {
				return err
			}

			result, err := manager.Sweep(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("failed to clean sessions: %w", err)
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d expired sessions (%d stuck assemblies failed)\n",
				verb, result.Cleaned, result.StuckFailed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count the sessions that would be removed")

	return cmd
}
