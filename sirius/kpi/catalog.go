package kpi

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticCatalog is an in-memory CatalogSource.
type StaticCatalog []Definition

func (c StaticCatalog) ListKPIs(context.Context) ([]Definition, error) {
	out := make([]Definition, len(c))
	copy(out, c)
	return out, nil
}

// LoadCatalogFile reads a YAML list of definitions, either a bare sequence or
// a mapping with a top-level "kpis" key.
func LoadCatalogFile(path string) (StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read KPI catalog %s: %w", path, err)
	}

	var wrapped struct {
		KPIs []Definition `yaml:"kpis"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.KPIs) > 0 {
		return assignIDs(wrapped.KPIs), nil
	}

	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse KPI catalog %s: %w", path, err)
	}
	return assignIDs(defs), nil
}

// assignIDs numbers definitions that carry no id, starting after the highest
// declared id so generated ids never collide with declared ones.
func assignIDs(defs []Definition) StaticCatalog {
	var next uint
	for _, d := range defs {
		next = max(next, d.ID)
	}
	for i := range defs {
		if defs[i].ID == 0 {
			next++
			defs[i].ID = next
		}
	}
	return StaticCatalog(defs)
}

// DiscardValues is a ValueStore that persists nothing.
type DiscardValues struct{}

func (DiscardValues) AppendValues(context.Context, []Value) error { return nil }
