package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/postgres"
)

var rollback bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ingest tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()

		db, err := postgres.Connect(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("❌ %w", err)
		}

		if rollback {
			if err := postgres.RollbackIndexes(ctx, db); err != nil {
				return fmt.Errorf("❌ rollback failed: %w", err)
			}
			fmt.Fprintln(out, "✅ Rollback completed successfully")
			return nil
		}

		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("❌ migration failed: %w", err)
		}
		fmt.Fprintln(out, "✅ Migration completed successfully")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&rollback, "rollback", false, "drop the supplemental indexes instead")
}
