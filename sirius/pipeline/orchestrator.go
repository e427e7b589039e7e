// Package pipeline sequences format detection, structural validation,
// extraction and normalization over uploaded reports, and drives the upload
// job lifecycle around it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/metrics"
	"github.com/SiriusScan/go-ingest/sirius/normalizer"
	"github.com/SiriusScan/go-ingest/sirius/parser"
	"github.com/SiriusScan/go-ingest/sirius/telemetry"
)

// NormalizeFunc converts one raw finding. It must be free of side effects.
type NormalizeFunc func(sirius.RawFinding) (sirius.CanonicalFinding, error)

// Orchestrator runs the detector → validator → extractor → normalizer
// sequence over one upload at a time. It holds no per-upload state, so one
// Orchestrator may serve concurrent uploads.
type Orchestrator struct {
	registry  *parser.Registry
	normalize NormalizeFunc
	workers   int
	logger    *slog.Logger
	metrics   *metrics.Recorder
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the number of concurrent normalizations per upload.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithNormalizer replaces normalizer.Normalize.
func WithNormalizer(fn NormalizeFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.normalize = fn
		}
	}
}

// NewOrchestrator creates an Orchestrator selecting parsers from registry.
func NewOrchestrator(registry *parser.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		normalize: normalizer.Normalize,
		workers:   runtime.GOMAXPROCS(0),
		logger:    slog.Default(),
		tracer:    telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Process runs one upload to a terminal stage. Batch-scoped failures return
// a non-nil error together with a result in StageFailed; record-scoped
// failures are folded into the result's rejections.
func (o *Orchestrator) Process(ctx context.Context, upload Upload) (*BatchResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("upload.filename", upload.Filename),
		attribute.String("tool.name", upload.Tool.Name),
		attribute.Int("upload.bytes", len(upload.Content)),
	))
	defer span.End()

	result := &BatchResult{
		FileID:   upload.FileID,
		Filename: upload.Filename,
		Stage:    StageReceived,
	}
	logger := o.logger.With("filename", upload.Filename, "file_id", upload.FileID)

	fail := func(err error) (*BatchResult, error) {
		result.Stage = StageFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.Batch(result.Format, string(StageFailed))
		logger.Error("Report processing failed", "error", err)
		return result, err
	}

	p, err := o.registry.Select(upload.Tool)
	if err != nil {
		return fail(err)
	}
	result.Format = p.Format()

	start := time.Now()
	verdict := p.Detect(upload.Content)
	o.metrics.ObserveStage("detect", start)
	if !verdict.Recognized {
		return fail(&parser.UnrecognizedFormatError{
			Format:   p.Format(),
			Evidence: verdict.Evidence,
			Markers:  verdict.Markers,
		})
	}
	o.advance(result, StageFormatChecked, logger)

	start = time.Now()
	doc, err := p.Decode(upload.Content)
	if err != nil {
		return fail(err)
	}
	if err := p.Validate(doc); err != nil {
		return fail(err)
	}
	o.metrics.ObserveStage("validate", start)
	o.advance(result, StageStructurallyValidated, logger)

	o.advance(result, StageExtracting, logger)
	start = time.Now()
	extraction := p.Extract(ctx, doc)
	raws := extraction.Collect()
	result.Extraction = extraction.Stats()
	o.metrics.ObserveStage("extract", start)
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("extraction interrupted: %w", err))
	}
	o.metrics.Extracted(result.Format, len(raws))
	if result.Extraction.Truncated {
		logger.Warn("Extraction truncated at findings cap", "emitted", result.Extraction.Emitted)
	}

	o.advance(result, StageNormalizing, logger)
	start = time.Now()
	outcomes, err := o.normalizeAll(ctx, raws)
	o.metrics.ObserveStage("normalize", start)
	if err != nil {
		return fail(fmt.Errorf("normalization interrupted: %w", err))
	}
	o.fold(result, raws, outcomes, logger)

	o.advance(result, StageCompleted, logger)
	o.metrics.Batch(result.Format, string(StageCompleted))
	o.metrics.Accepted(result.Format, result.Accepted())
	span.SetAttributes(
		attribute.Int("findings.accepted", result.Accepted()),
		attribute.Int("findings.rejected", result.Rejected()),
	)

	if result.Rejected() > 0 {
		logger.Warn("Some findings failed normalization",
			"rejected", result.Rejected(), "extracted", len(raws))
	}
	logger.Info("Report processed",
		"format", result.Format,
		"extracted", len(raws),
		"accepted", result.Accepted(),
		"rejected", result.Rejected(),
		"truncated", result.Extraction.Truncated)

	return result, nil
}

func (o *Orchestrator) advance(result *BatchResult, next Stage, logger *slog.Logger) {
	logger.Debug("Stage transition", "from", result.Stage, "to", next)
	result.Stage = next
}

type outcome struct {
	canonical sirius.CanonicalFinding
	err       error
}

// normalizeAll normalizes every raw finding on a bounded pool. Outcomes are
// stored by index so the fold below is independent of scheduling order.
func (o *Orchestrator) normalizeAll(ctx context.Context, raws []sirius.RawFinding) ([]outcome, error) {
	outcomes := make([]outcome, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, raw := range raws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			canonical, err := o.normalize(raw)
			outcomes[i] = outcome{canonical: canonical, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// fold turns per-record outcomes into accepted pairs and rejections.
func (o *Orchestrator) fold(result *BatchResult, raws []sirius.RawFinding, outcomes []outcome, logger *slog.Logger) {
	result.Findings = make([]sirius.Pair, 0, len(raws))
	for i, out := range outcomes {
		if out.err == nil {
			result.Findings = append(result.Findings, sirius.Pair{Raw: raws[i], Canonical: out.canonical})
			continue
		}
		rejection := Rejection{Index: i, Reason: out.err.Error()}
		var fieldErr *normalizer.FieldValidationError
		if errors.As(out.err, &fieldErr) {
			rejection.Field = fieldErr.Field
		}
		result.Rejections = append(result.Rejections, rejection)
		o.metrics.Rejected(result.Format, rejection.Field)
		logger.Warn("Failed to normalize finding", "index", i+1, "field", rejection.Field, "error", out.err)
	}
}
