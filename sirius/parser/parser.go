// Package parser defines the pluggable report-parser contract used by the
// ingestion pipeline, the batch-scoped error taxonomy and parser selection by
// tool descriptor.
package parser

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/SiriusScan/go-ingest/sirius"
)

// ToolTypeVulnerabilityScanner is the only tool type with registered parsers.
const ToolTypeVulnerabilityScanner = "vulnerability scanner"

// FormatVerdict is the outcome of format detection.
type FormatVerdict struct {
	Recognized bool `json:"recognized"`
	Evidence   int  `json:"evidence"`
	Markers    int  `json:"markers"`
}

// Document is a decoded, well-formed report tree.
type Document interface {
	Format() string
}

// ReportParser turns raw report bytes into raw findings in four steps:
// detection, decoding, structural validation and extraction.
type ReportParser interface {
	Format() string
	Detect(content []byte) FormatVerdict
	Decode(content []byte) (Document, error)
	Validate(doc Document) error
	Extract(ctx context.Context, doc Document) *Extraction
}

// ExtractionStats summarises a drained extraction.
type ExtractionStats struct {
	Emitted   int  `json:"emitted"`
	Skipped   int  `json:"skipped"`
	Filtered  int  `json:"filtered"`
	Truncated bool `json:"truncated"`
}

// ProduceFunc yields raw findings and records counters in stats.
type ProduceFunc func(yield func(sirius.RawFinding) bool, stats *ExtractionStats)

// Extraction is a lazy, finite, single-pass sequence of raw findings.
type Extraction struct {
	produce  ProduceFunc
	stats    ExtractionStats
	consumed bool
	mu       sync.Mutex
}

// NewExtraction wraps produce in a single-pass sequence.
func NewExtraction(produce ProduceFunc) *Extraction {
	return &Extraction{produce: produce}
}

// All returns the sequence. Only the first iteration yields findings.
func (e *Extraction) All() iter.Seq[sirius.RawFinding] {
	return func(yield func(sirius.RawFinding) bool) {
		e.mu.Lock()
		if e.consumed {
			e.mu.Unlock()
			return
		}
		e.consumed = true
		e.mu.Unlock()
		e.produce(yield, &e.stats)
	}
}

// Collect drains the sequence into a slice.
func (e *Extraction) Collect() []sirius.RawFinding {
	var out []sirius.RawFinding
	for raw := range e.All() {
		out = append(out, raw)
	}
	return out
}

// Stats returns the counters. They are final once All has been drained.
func (e *Extraction) Stats() ExtractionStats {
	return e.stats
}

// Truncated reports whether extraction stopped at the findings cap.
func (e *Extraction) Truncated() bool {
	return e.stats.Truncated
}

type registration struct {
	toolType    string
	nameKeyword string
	parser      ReportParser
}

// Registry selects a ReportParser from a tool descriptor.
type Registry struct {
	entries []registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds p to tools of toolType whose name contains nameKeyword.
// Both comparisons are case-insensitive.
func (r *Registry) Register(toolType, nameKeyword string, p ReportParser) {
	r.entries = append(r.entries, registration{
		toolType:    canonicalToolType(toolType),
		nameKeyword: strings.ToLower(nameKeyword),
		parser:      p,
	})
}

// Select returns the parser registered for tool or an *UnsupportedToolError.
func (r *Registry) Select(tool sirius.ToolDescriptor) (ReportParser, error) {
	toolType := canonicalToolType(tool.Type)
	name := strings.ToLower(tool.Name)
	for _, entry := range r.entries {
		if entry.toolType == toolType && strings.Contains(name, entry.nameKeyword) {
			return entry.parser, nil
		}
	}
	return nil, &UnsupportedToolError{ToolType: tool.Type, ToolName: tool.Name}
}

func isVulnerabilityScanner(toolType string) bool {
	return canonicalToolType(toolType) == ToolTypeVulnerabilityScanner
}

// canonicalToolType folds "Vulnerability_Scanner" and "vulnerability scanner"
// to the same key.
func canonicalToolType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, "_", " ")
	return strings.Join(strings.Fields(t), " ")
}
