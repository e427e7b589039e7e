package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/events"
	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/metadata"
	"github.com/SiriusScan/go-ingest/sirius/metrics"
	"github.com/SiriusScan/go-ingest/sirius/pipeline"
	"github.com/SiriusScan/go-ingest/sirius/postgres"
	"github.com/SiriusScan/go-ingest/sirius/queue"
	"github.com/SiriusScan/go-ingest/sirius/snapshot"
	"github.com/SiriusScan/go-ingest/sirius/store"
	"github.com/SiriusScan/go-ingest/sirius/telemetry"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume upload jobs from RabbitMQ",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
			Endpoint: cfg.Tracing.Endpoint,
			Insecure: cfg.Tracing.Insecure,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				slog.Warn("Failed to flush traces", "error", err)
			}
		}()

		rec, err := metrics.New()
		if err != nil {
			return err
		}

		db, err := postgres.Connect(cfg.Database.DSN)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}

		kv, err := store.NewValkeyStore(cfg.Valkey.Addr)
		if err != nil {
			return fmt.Errorf("failed to connect to valkey: %w", err)
		}
		defer kv.Close()

		kpiRepo := postgres.NewKPIRepository(db)
		engine := kpi.NewEngine(kpiRepo, kpiRepo,
			kpi.WithMaxAcceptableFindings(cfg.KPI.MaxAcceptableFindings),
			kpi.WithMetrics(rec),
		)
		mq := queue.NewClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxInFlight)

		svc, err := pipeline.NewService(pipeline.ServiceDeps{
			Orchestrator: newOrchestrator(cfg, rec),
			Metadata:     metadata.NewClient(cfg.Metadata.URL, cfg.Metadata.Timeout, rec),
			Uploads:      postgres.NewUploadRepository(db),
			KPI:          engine,
			Events:       events.NewRepository(db),
			Snapshots:    snapshot.NewSnapshotManager(kv, cfg.KPI.SnapshotRetention),
			StatusCache:  kv,
			Publisher:    mq,
			NotifyQueue:  cfg.RabbitMQ.NotifyQueue,
		})
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           adminMux(rec, kv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Serving metrics and health", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Admin server failed", "error", err)
			}
		}()

		mq.ListenWithRetry(ctx, cfg.RabbitMQ.IngestQueue, svc.HandleMessage)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func adminMux(rec *metrics.Recorder, kv store.KVStore) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "service": "sirius-ingest"}
		code := http.StatusOK

		if err := postgresPing(r.Context()); err != nil {
			status["status"], status["database"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := kv.Ping(r.Context()); err != nil {
			status["status"], status["valkey"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})
	return mux
}

func postgresPing(ctx context.Context) error {
	db := postgres.GetDB()
	if db == nil {
		return postgres.ErrNoConnection
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
