package kpi

import (
	"math"
	"slices"

	"github.com/SiriusScan/go-ingest/sirius"
)

// UnknownHost stands in for findings without a source address when counting
// unique hosts.
const UnknownHost = "unknown"

// DefaultMaxAcceptableFindings is the compliance-rate ceiling.
const DefaultMaxAcceptableFindings = 10

// Stats are the order-independent aggregates every strategy reads from.
type Stats struct {
	Total        int
	UniqueHosts  int
	HighCritical int
	Exploitable  int
	WithPolicy   int
	CVSSCount    int
	CVSSSum      float64
}

// Summarize aggregates pairs. The result does not depend on input order.
func Summarize(pairs []sirius.Pair) Stats {
	var st Stats
	hosts := make(map[string]struct{})
	var scores []float64

	for _, p := range pairs {
		c := p.Canonical
		st.Total++

		host := c.IPSource
		if host == "" {
			host = UnknownHost
		}
		hosts[host] = struct{}{}

		if c.Severity.IsHighOrCritical() {
			st.HighCritical++
		}
		if p.Exploitable() {
			st.Exploitable++
		}
		if c.Policy != "" {
			st.WithPolicy++
		}
		if c.CVSSBaseScore != nil {
			scores = append(scores, *c.CVSSBaseScore)
		}
	}

	// Floating-point addition is not associative; a fixed order keeps the
	// sum identical for any permutation of the input.
	slices.Sort(scores)
	for _, s := range scores {
		st.CVSSSum += s
	}
	st.CVSSCount = len(scores)
	st.UniqueHosts = len(hosts)
	return st
}

// Evaluate computes the plan's value against st.
func (p Plan) Evaluate(st Stats, maxAcceptable int) (float64, error) {
	if maxAcceptable <= 0 {
		maxAcceptable = DefaultMaxAcceptableFindings
	}

	switch p.Strategy.Category() {
	case CategorySecurity:
		if st.Total == 0 {
			return 0, nil
		}
	case CategoryCompliance:
		if st.Total == 0 {
			return 100, nil
		}
	}

	switch p.Strategy {
	case StrategySecurityTotal, StrategyComplianceTotal:
		return float64(st.Total), nil
	case StrategyHighCritical:
		return float64(st.HighCritical), nil
	case StrategyDensity:
		if st.UniqueHosts == 0 {
			return 0, nil
		}
		return round2(float64(st.Total) / float64(st.UniqueHosts)), nil
	case StrategyAverageCVSS:
		if st.CVSSCount == 0 {
			return 0, nil
		}
		return round2(st.CVSSSum / float64(st.CVSSCount)), nil
	case StrategyExploitablePercent:
		return round2(float64(st.Exploitable) / float64(st.Total) * 100), nil
	case StrategyHostCoverage:
		return float64(st.UniqueHosts), nil
	case StrategyCompletion:
		if st.Total > 0 {
			return 100, nil
		}
		return 0, nil
	case StrategyPolicyViolations:
		return float64(st.WithPolicy), nil
	case StrategyComplianceRate:
		ceiling := float64(maxAcceptable)
		return round2(math.Max(0, (ceiling-float64(st.Total))/ceiling*100)), nil
	case StrategyFormula:
		if p.compileErr != nil {
			return 0, p.compileErr
		}
		v, err := p.expr.eval(formulaVars(st))
		if err != nil {
			return 0, &FormulaEvaluationError{KPI: p.Definition.Name, Formula: p.Definition.Formula, Err: err}
		}
		return v, nil
	}
	return 0, ErrUnclassified
}

func formulaVars(st Stats) map[string]float64 {
	return map[string]float64{
		"total_findings": float64(st.Total),
		"unique_hosts":   float64(st.UniqueHosts),
		"high_severity":  float64(st.HighCritical),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
