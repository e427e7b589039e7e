package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/postgres"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check PostgreSQL and Valkey connectivity",
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
		var one int
		if err := db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
			return fmt.Errorf("❌ failed to execute query: %w", err)
		}
		fmt.Fprintln(out, "✅ PostgreSQL connection successful")

		kv, err := store.NewValkeyStore(cfg.Valkey.Addr)
		if err != nil {
			return fmt.Errorf("❌ failed to connect to valkey: %w", err)
		}
		defer kv.Close()
		if err := kv.Ping(ctx); err != nil {
			return fmt.Errorf("❌ %w", err)
		}
		fmt.Fprintln(out, "✅ Valkey connection successful")
		return nil
	},
}
