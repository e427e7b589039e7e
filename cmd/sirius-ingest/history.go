package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/postgres"
	"github.com/SiriusScan/go-ingest/sirius/snapshot"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

var (
	historyLimit int
	historyKPIID uint
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent KPI runs, or the value history of one KPI",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if historyKPIID != 0 {
			db, err := postgres.Connect(cfg.Database.DSN)
			if err != nil {
				return err
			}
			values, err := postgres.NewKPIRepository(db).History(ctx, historyKPIID, historyLimit)
			if err != nil {
				return err
			}
			return enc.Encode(values)
		}

		kv, err := store.NewValkeyStore(cfg.Valkey.Addr)
		if err != nil {
			return fmt.Errorf("failed to connect to valkey: %w", err)
		}
		defer kv.Close()

		snapshots, err := snapshot.NewSnapshotManager(kv, cfg.KPI.SnapshotRetention).GetTrendData(ctx, historyLimit)
		if err != nil {
			return err
		}
		return enc.Encode(snapshots)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of entries")
	historyCmd.Flags().UintVar(&historyKPIID, "kpi", 0, "Show the stored values of this KPI id instead of run snapshots")
}
