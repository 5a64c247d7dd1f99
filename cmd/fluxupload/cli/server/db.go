package server

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/mwantia/fluxupload/internal/agent"
	"github.com/mwantia/fluxupload/pkg/db/migrations"
	"github.com/spf13/cobra"

	config "github.com/mwantia/fluxupload/internal/config/server"
)

func NewDatabaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Metadata database maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, ctx context.Context, m *migrations.Migrator) error {
			if err := m.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List schema migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, ctx context.Context, m *migrations.Migrator) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tAPPLIED\tDESCRIPTION")
			for _, status := range statuses {
				fmt.Fprintf(w, "%d\t%t\t%s\n", status.Version, status.Applied, status.Description)
			}
			return w.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, ctx context.Context, m *migrations.Migrator) error {
			version, err := m.Rollback(ctx)
			if errors.Is(err, migrations.ErrNothingToRollback) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to roll back")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d\n", version)
			return nil
		}),
	})

	return cmd
}

func withMigrator(fn func(*cobra.Command, context.Context, *migrations.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig()
		if err != nil {
			return fmt.Errorf("failed to load server configuration: %w", err)
		}

		ctx := context.Background()
		st, err := agent.OpenStore(ctx, cfg.Metadata, false)
		if err != nil {
			return err
		}
		defer st.Close()

		return fn(cmd, ctx, migrations.NewMigrator(st.DB()))
	}
}
