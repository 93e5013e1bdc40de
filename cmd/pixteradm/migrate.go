package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixter/pixter-backend/internal/db"
)

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Long: `Apply SQL migrations that are not yet recorded in schema_migrations.

Migrations are read from --dir (or MIGRATIONS_PATH) when that directory exists,
otherwise the set embedded in the binary is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if dir == "" {
				dir = e.cfg.MigrationsPath
			}
			applied, err := db.RunMigrations(cmd.Context(), e.db, db.MigrationsSource(dir))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory")
	return cmd
}
