package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius/config"
	"github.com/SiriusScan/go-ingest/sirius/metrics"
	"github.com/SiriusScan/go-ingest/sirius/parser"
	"github.com/SiriusScan/go-ingest/sirius/parser/nessus"
	"github.com/SiriusScan/go-ingest/sirius/pipeline"
	"github.com/SiriusScan/go-ingest/sirius/slogger"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "sirius-ingest",
	Short: "Scanner report ingestion and KPI calculation",
	Long: `sirius-ingest validates scanner exports (Nessus v2), normalizes their
findings into the canonical schema and calculates KPI values from them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slogger.InitWith(os.Stderr, logLevel, logFormat)
	},
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", os.Getenv("LOG_FORMAT"), "Log format (text, json)")

	rootCmd.AddCommand(parseCmd, workerCmd, calculateCmd, historyCmd, checkCmd, migrateCmd, statusCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// newOrchestrator wires the parser registry and the normalization pool.
func newOrchestrator(cfg *config.Config, rec *metrics.Recorder) *pipeline.Orchestrator {
	opts := cfg.NessusOptions()
	opts.Logger = slog.Default()

	registry := parser.NewRegistry()
	nessus.Register(registry, opts)

	return pipeline.NewOrchestrator(registry,
		pipeline.WithWorkers(cfg.Pipeline.NormalizeWorkers),
		pipeline.WithMetrics(rec),
		pipeline.WithLogger(slog.Default()),
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
