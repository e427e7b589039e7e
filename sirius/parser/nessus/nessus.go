// Package nessus implements the report parser for Tenable Nessus v2 XML exports.
package nessus

import (
	"context"
	"log/slog"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/parser"
)

// Options configures a Parser.
type Options struct {
	MaxFindings int
	SkipPlugins []string
	SampleSize  int
	Logger      *slog.Logger
}

// Parser implements parser.ReportParser for Nessus v2 reports.
type Parser struct {
	extractor  *Extractor
	sampleSize int
}

var _ parser.ReportParser = (*Parser)(nil)

// New creates a Parser.
func New(opts Options) *Parser {
	return &Parser{
		extractor:  NewExtractor(opts.MaxFindings, opts.SkipPlugins, opts.Logger),
		sampleSize: opts.SampleSize,
	}
}

// Register binds a Parser to Nessus vulnerability scanners in reg.
func Register(reg *parser.Registry, opts Options) {
	reg.Register(parser.ToolTypeVulnerabilityScanner, "nessus", New(opts))
}

func (p *Parser) Format() string {
	return FormatName
}

func (p *Parser) Detect(content []byte) parser.FormatVerdict {
	return Detect(content)
}

func (p *Parser) Decode(content []byte) (parser.Document, error) {
	return Decode(content)
}

func (p *Parser) Validate(doc parser.Document) error {
	report, err := asReport(doc)
	if err != nil {
		return err
	}
	return Validate(report, p.sampleSize)
}

func (p *Parser) Extract(ctx context.Context, doc parser.Document) *parser.Extraction {
	report, err := asReport(doc)
	if err != nil {
		p.extractor.Logger.Error("Cannot extract findings", "error", err)
		return parser.NewExtraction(func(func(sirius.RawFinding) bool, *parser.ExtractionStats) {})
	}
	return p.extractor.Extract(ctx, report)
}
