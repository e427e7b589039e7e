package kpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/metrics"
	"github.com/SiriusScan/go-ingest/sirius/telemetry"
)

// CatalogSource supplies KPI definitions.
type CatalogSource interface {
	ListKPIs(ctx context.Context) ([]Definition, error)
}

// ValueStore appends the values of one run. Implementations must persist all
// of values or none of them.
type ValueStore interface {
	AppendValues(ctx context.Context, values []Value) error
}

// Value is one computed KPI value.
type Value struct {
	KPIID     uint
	RunID     string
	Value     float64
	Timestamp time.Time
}

// CalculatedKPI is one entry of the calculation result contract.
type CalculatedKPI struct {
	KPIID           uint      `json:"kpi_id"`
	KPIName         string    `json:"kpi_name"`
	CalculatedValue float64   `json:"calculated_value"`
	Unit            string    `json:"unit"`
	Target          string    `json:"target"`
	Timestamp       time.Time `json:"timestamp"`
	Strategy        string    `json:"strategy"`
}

// Failure records a KPI that produced no value in a run.
type Failure struct {
	KPIID   uint   `json:"kpi_id"`
	KPIName string `json:"kpi_name"`
	Reason  string `json:"reason"`
}

// Result is the outcome of a calculation run.
type Result struct {
	RunID          string          `json:"run_id"`
	Success        bool            `json:"success"`
	CalculatedKPIs []CalculatedKPI `json:"calculated_kpis"`
	Failures       []Failure       `json:"failures,omitempty"`
	Message        string          `json:"message"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Engine runs KPI calculations against a catalog and a value store.
type Engine struct {
	catalog       CatalogSource
	values        ValueStore
	maxAcceptable int
	logger        *slog.Logger
	metrics       *metrics.Recorder
	tracer        trace.Tracer
	now           func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxAcceptableFindings sets the compliance-rate ceiling.
func WithMaxAcceptableFindings(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAcceptable = n
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(catalog CatalogSource, values ValueStore, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:       catalog,
		values:        values,
		maxAcceptable: DefaultMaxAcceptableFindings,
		logger:        slog.Default(),
		tracer:        telemetry.Tracer(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "kpi_engine")
	return e
}

// Calculate evaluates plans against pairs without touching any store.
// Plans that fail are reported in the returned failures.
func (e *Engine) Calculate(plans []Plan, pairs []sirius.Pair, runID string, at time.Time) ([]Value, []CalculatedKPI, []Failure) {
	st := Summarize(pairs)

	var (
		values     []Value
		calculated []CalculatedKPI
		failures   []Failure
	)
	for _, plan := range plans {
		def := plan.Definition
		if plan.Strategy == StrategyUnclassified {
			e.metrics.KPIFailure("unclassified")
			continue
		}

		v, err := plan.Evaluate(st, e.maxAcceptable)
		if err != nil {
			reason := "evaluation"
			var fe *FormulaEvaluationError
			if errors.As(err, &fe) {
				reason = "formula"
			}
			e.metrics.KPIFailure(reason)
			e.logger.Error("Error calculating KPI", "kpi", def.Name, "strategy", plan.Strategy, "error", err)
			failures = append(failures, Failure{KPIID: def.ID, KPIName: def.Name, Reason: err.Error()})
			continue
		}

		values = append(values, Value{KPIID: def.ID, RunID: runID, Value: v, Timestamp: at})
		calculated = append(calculated, CalculatedKPI{
			KPIID:           def.ID,
			KPIName:         def.Name,
			CalculatedValue: v,
			Unit:            def.Unit,
			Target:          def.Target,
			Timestamp:       at,
			Strategy:        plan.Strategy.String(),
		})
		e.metrics.KPIValue(plan.Strategy.String())
		e.logger.Debug("Calculated KPI", "kpi", def.Name, "value", v, "unit", def.Unit)
	}
	return values, calculated, failures
}

// Run loads the catalog, computes every KPI for pairs and appends the values
// as one atomic run. When the append fails nothing is persisted and the
// result is unsuccessful.
func (e *Engine) Run(ctx context.Context, pairs []sirius.Pair) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "kpi.run", trace.WithAttributes(
		attribute.Int("findings", len(pairs)),
	))
	defer span.End()

	at := e.now().UTC()
	result := &Result{RunID: uuid.NewString(), Timestamp: at}
	span.SetAttributes(attribute.String("run_id", result.RunID))

	fail := func(err error) (*Result, error) {
		result.Success = false
		result.CalculatedKPIs = nil
		result.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("KPI calculation run failed", "run_id", result.RunID, "error", err)
		return result, err
	}

	defs, err := e.catalog.ListKPIs(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to load KPI catalog: %w", err))
	}
	e.logger.Info("Found KPIs to calculate", "count", len(defs), "run_id", result.RunID)

	plans := Compile(defs, e.logger)
	values, calculated, failures := e.Calculate(plans, pairs, result.RunID, at)
	result.Failures = failures

	if len(values) > 0 {
		if err := e.values.AppendValues(ctx, values); err != nil {
			return fail(fmt.Errorf("failed to persist KPI values for run %s: %w", result.RunID, err))
		}
	}

	result.Success = true
	result.CalculatedKPIs = calculated
	if result.CalculatedKPIs == nil {
		result.CalculatedKPIs = []CalculatedKPI{}
	}
	result.Message = fmt.Sprintf("Successfully calculated %d KPI values", len(calculated))
	e.logger.Info(result.Message, "run_id", result.RunID, "failures", len(failures))
	return result, nil
}
