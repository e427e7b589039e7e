// Package kpi computes KPI values from a batch of normalized findings. Catalog
// entries are classified once into a calculation Strategy; the per-run work
// is a switch over that closed set.
package kpi

import (
	"log/slog"
	"strings"
)

// Definition is a KPI catalog entry. It is read-only to the engine.
type Definition struct {
	ID        uint   `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Formula   string `json:"formula,omitempty" yaml:"formula"`
	Unit      string `json:"unit,omitempty" yaml:"unit"`
	Target    string `json:"target,omitempty" yaml:"target"`
	Level     string `json:"level,omitempty" yaml:"level"`
	Frequency string `json:"frequency,omitempty" yaml:"frequency"`
}

// Strategy is the calculation chosen for a Definition.
type Strategy int

const (
	StrategyUnclassified Strategy = iota

	StrategySecurityTotal
	StrategyHighCritical
	StrategyDensity
	StrategyAverageCVSS
	StrategyExploitablePercent

	StrategyHostCoverage
	StrategyCompletion

	StrategyComplianceTotal
	StrategyPolicyViolations
	StrategyComplianceRate

	StrategyFormula
)

var strategyNames = map[Strategy]string{
	StrategyUnclassified:       "unclassified",
	StrategySecurityTotal:      "security_total",
	StrategyHighCritical:       "high_critical",
	StrategyDensity:            "density",
	StrategyAverageCVSS:        "average_cvss",
	StrategyExploitablePercent: "exploitable_percent",
	StrategyHostCoverage:       "host_coverage",
	StrategyCompletion:         "completion",
	StrategyComplianceTotal:    "compliance_total",
	StrategyPolicyViolations:   "policy_violations",
	StrategyComplianceRate:     "compliance_rate",
	StrategyFormula:            "formula",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// Category groups strategies the way catalog types do.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryCompliance  Category = "compliance"
	CategoryFormula     Category = "formula"
	CategoryNone        Category = ""
)

// Category returns the category a strategy belongs to.
func (s Strategy) Category() Category {
	switch s {
	case StrategySecurityTotal, StrategyHighCritical, StrategyDensity, StrategyAverageCVSS, StrategyExploitablePercent:
		return CategorySecurity
	case StrategyHostCoverage, StrategyCompletion:
		return CategoryPerformance
	case StrategyComplianceTotal, StrategyPolicyViolations, StrategyComplianceRate:
		return CategoryCompliance
	case StrategyFormula:
		return CategoryFormula
	}
	return CategoryNone
}

// Plan is a Definition bound to its strategy. A formula plan carries its
// compiled expression, or the error that prevented compiling it.
type Plan struct {
	Definition Definition
	Strategy   Strategy

	expr       expr
	compileErr error
}

// Classify picks the strategy for def from keywords in its type and name.
func Classify(def Definition) Strategy {
	kind := strings.ToLower(def.Type)
	name := strings.ToLower(def.Name)

	switch {
	case containsAny(kind, "security", "vulnerability"):
		switch {
		case containsAny(name, "high", "critical"):
			return StrategyHighCritical
		case containsAny(name, "density"):
			return StrategyDensity
		case containsAny(name, "cvss", "average"):
			return StrategyAverageCVSS
		case containsAny(name, "exploitable"):
			return StrategyExploitablePercent
		}
		return StrategySecurityTotal

	case containsAny(kind, "performance", "system"):
		if containsAny(name, "coverage", "hosts") {
			return StrategyHostCoverage
		}
		return StrategyCompletion

	case containsAny(kind, "compliance", "policy"):
		switch {
		case containsAny(name, "policy", "violation"):
			return StrategyPolicyViolations
		case containsAny(name, "compliance"):
			return StrategyComplianceRate
		}
		return StrategyComplianceTotal
	}

	if strings.TrimSpace(def.Formula) != "" {
		return StrategyFormula
	}
	return StrategyUnclassified
}

// Compile classifies every definition and parses formulas. Definitions that
// cannot be classified are kept as unclassified plans and logged.
func Compile(defs []Definition, logger *slog.Logger) []Plan {
	if logger == nil {
		logger = slog.Default()
	}
	plans := make([]Plan, 0, len(defs))
	for _, def := range defs {
		plan := Plan{Definition: def, Strategy: Classify(def)}
		switch plan.Strategy {
		case StrategyFormula:
			e, err := parseFormula(def.Formula)
			if err != nil {
				plan.compileErr = &FormulaEvaluationError{KPI: def.Name, Formula: def.Formula, Err: err}
				logger.Warn("KPI formula does not compile", "kpi", def.Name, "error", err)
			}
			plan.expr = e
		case StrategyUnclassified:
			logger.Warn("No calculation method found for KPI type", "kpi", def.Name, "type", def.Type)
		}
		plans = append(plans, plan)
	}
	return plans
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
