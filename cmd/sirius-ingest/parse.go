package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/parser"
	"github.com/SiriusScan/go-ingest/sirius/pipeline"
)

var (
	parseToolName string
	parseToolType string
	parseCatalog  string
	parseSummary  bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <report>",
	Short: "Parse a report file and print its normalized findings",
	Long: `Runs detection, validation, extraction and normalization over a local
report and prints {"findings": [...]} to stdout. With --catalog, KPI values
are calculated from a YAML catalog without touching any database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("error reading file: %w", err)
		}

		ctx := commandContext(cmd)
		orch := newOrchestrator(cfg, nil)
		result, err := orch.Process(ctx, pipeline.Upload{
			Filename: filepath.Base(args[0]),
			Content:  content,
			Tool:     sirius.ToolDescriptor{Name: parseToolName, Type: parseToolType},
		})
		if err != nil {
			if text, ok := parser.Remediation(err); ok {
				return fmt.Errorf("%w\n%s", err, text)
			}
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if parseCatalog != "" {
			catalog, err := kpi.LoadCatalogFile(parseCatalog)
			if err != nil {
				return err
			}
			engine := kpi.NewEngine(catalog, kpi.DiscardValues{},
				kpi.WithMaxAcceptableFindings(cfg.KPI.MaxAcceptableFindings),
				kpi.WithLogger(slog.Default()),
			)
			kpiResult, err := engine.Run(ctx, result.Findings)
			if err != nil {
				return err
			}
			return enc.Encode(kpiResult)
		}

		if parseSummary {
			return enc.Encode(struct {
				Filename   string                 `json:"filename"`
				Format     string                 `json:"format"`
				Stage      pipeline.Stage         `json:"stage"`
				Accepted   int                    `json:"accepted"`
				Rejections []pipeline.Rejection   `json:"rejections,omitempty"`
				Extraction parser.ExtractionStats `json:"extraction"`
			}{result.Filename, result.Format, result.Stage, result.Accepted(), result.Rejections, result.Extraction})
		}
		return enc.Encode(result.Response())
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseToolName, "tool-name", "Nessus", "Name of the tool that produced the report")
	parseCmd.Flags().StringVar(&parseToolType, "tool-type", parser.ToolTypeVulnerabilityScanner, "Type of the tool that produced the report")
	parseCmd.Flags().StringVar(&parseCatalog, "catalog", "", "YAML KPI catalog; prints the KPI calculation result instead of findings")
	parseCmd.Flags().BoolVar(&parseSummary, "summary", false, "Print counts and rejections instead of findings")
}
