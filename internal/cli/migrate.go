package cli

import (
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/di"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/migrate"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(newMigrateUpCmd(opts))
	cmd.AddCommand(newMigrateListCmd())
	return cmd
}

func newMigrateUpCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, di.PostgresConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := migrate.Up(ctx, db)
			for _, name := range applied {
				printf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				printf(cmd.OutOrStdout(), "schema is up to date\n")
			}
			return nil
		},
	}
}

func newMigrateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List embedded migrations in apply order",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := migrate.Files()
			if err != nil {
				return err
			}
			for _, name := range names {
				printf(cmd.OutOrStdout(), "%s\n", name)
			}
			return nil
		},
	}
}
