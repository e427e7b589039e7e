package kpi

import (
	"errors"
	"fmt"
)

// ErrUnclassified is returned when evaluating a plan with no strategy.
var ErrUnclassified = errors.New("no calculation method for KPI")

// FormulaEvaluationError is a per-KPI formula failure. It never aborts the
// rest of a calculation run.
type FormulaEvaluationError struct {
	KPI     string
	Formula string
	Err     error
}

func (e *FormulaEvaluationError) Error() string {
	return fmt.Sprintf("error evaluating formula %q for KPI %q: %v", e.Formula, e.KPI, e.Err)
}

func (e *FormulaEvaluationError) Unwrap() error {
	return e.Err
}
