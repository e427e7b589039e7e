package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/postgres"
	"github.com/SiriusScan/go-ingest/sirius/snapshot"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

var calculateFileID uint

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Recalculate KPI values from the findings stored for an upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		if calculateFileID == 0 {
			return fmt.Errorf("--file-id is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)

		db, err := postgres.Connect(cfg.Database.DSN)
		if err != nil {
			return err
		}

		pairs, err := postgres.NewUploadRepository(db).FindingsByFile(ctx, calculateFileID)
		if err != nil {
			return err
		}

		repo := postgres.NewKPIRepository(db)
		engine := kpi.NewEngine(repo, repo, kpi.WithMaxAcceptableFindings(cfg.KPI.MaxAcceptableFindings))
		result, err := engine.Run(ctx, pairs)
		if err != nil {
			return err
		}

		if kv, err := store.NewValkeyStore(cfg.Valkey.Addr); err == nil {
			defer kv.Close()
			manager := snapshot.NewSnapshotManager(kv, cfg.KPI.SnapshotRetention)
			if _, err := manager.CreateSnapshot(ctx, snapshot.Input{FileID: calculateFileID, Findings: pairs, Result: result}); err != nil {
				cmd.PrintErrf("warning: snapshot not stored: %v\n", err)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	calculateCmd.Flags().UintVar(&calculateFileID, "file-id", 0, "Upload whose stored findings are recalculated")
}
