package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/events"
	"github.com/SiriusScan/go-ingest/sirius/postgres"
	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

var (
	statusFileID uint
	statusRunID  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the processing status and events of an upload, or the values of a KPI run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusFileID == 0 && statusRunID == "" {
			return errors.New("one of --file-id or --run-id is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		db, err := postgres.Connect(cfg.Database.DSN)
		if err != nil {
			return err
		}

		if statusRunID != "" {
			values, err := postgres.NewKPIRepository(db).ValuesByRun(ctx, statusRunID)
			if err != nil {
				return err
			}
			return enc.Encode(values)
		}

		report := struct {
			Upload *store.UploadStatus `json:"upload,omitempty"`
			Events []models.Event      `json:"events"`
		}{}

		kv, err := store.NewValkeyStore(cfg.Valkey.Addr)
		if err != nil {
			return fmt.Errorf("failed to connect to valkey: %w", err)
		}
		defer kv.Close()

		report.Upload, err = store.GetUploadStatus(ctx, kv, statusFileID)
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return err
		}

		report.Events, err = events.NewRepository(db).GetEventsByEntity(ctx,
			models.EntityTypeFile, strconv.FormatUint(uint64(statusFileID), 10), 50)
		if err != nil {
			return err
		}
		return enc.Encode(report)
	},
}

func init() {
	statusCmd.Flags().UintVar(&statusFileID, "file-id", 0, "Upload file id")
	statusCmd.Flags().StringVar(&statusRunID, "run-id", "", "KPI run id")
}
