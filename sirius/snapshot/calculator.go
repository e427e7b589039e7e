package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

// KeyPrefix prefixes every KPI run snapshot key.
const KeyPrefix = "kpi:snapshot:"

// RunSnapshot is the point-in-time view of one upload and its KPI run.
type RunSnapshot struct {
	SnapshotID string              `json:"snapshot_id"`
	RunID      string              `json:"run_id"`
	FileID     uint                `json:"file_id"`
	Timestamp  time.Time           `json:"timestamp"`
	Counts     SeverityCounts      `json:"counts"`
	ByHost     []HostFindingStat   `json:"by_host"`
	KPIs       []kpi.CalculatedKPI `json:"kpis"`
	Metadata   SnapshotMetadata    `json:"metadata"`
}

// SeverityCounts are canonical findings by severity.
type SeverityCounts struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

func (c *SeverityCounts) add(s sirius.Severity) {
	c.Total++
	switch s {
	case sirius.SeverityCritical:
		c.Critical++
	case sirius.SeverityHigh:
		c.High++
	case sirius.SeverityMedium:
		c.Medium++
	case sirius.SeverityLow:
		c.Low++
	default:
		c.Info++
	}
}

// HostFindingStat are per-source-address counts.
type HostFindingStat struct {
	HostIP string `json:"host_ip"`
	SeverityCounts
}

// SnapshotMetadata describes the batch behind the snapshot.
type SnapshotMetadata struct {
	Format             string `json:"format,omitempty"`
	Extracted          int    `json:"extracted"`
	Rejected           int    `json:"rejected"`
	Truncated          bool   `json:"truncated"`
	KPIFailures        int    `json:"kpi_failures"`
	SnapshotDurationMs int64  `json:"snapshot_duration_ms"`
}

// Input is what a snapshot is calculated from.
type Input struct {
	FileID   uint
	Findings []sirius.Pair
	Result   *kpi.Result
	Metadata SnapshotMetadata
}

// SnapshotCalculator builds and stores run snapshots
type SnapshotCalculator struct {
	kvStore store.KVStore
}

// NewSnapshotCalculator creates a new SnapshotCalculator instance
func NewSnapshotCalculator(kvStore store.KVStore) *SnapshotCalculator {
	return &SnapshotCalculator{kvStore: kvStore}
}

// CalculateSnapshot aggregates in into a RunSnapshot.
func (sc *SnapshotCalculator) CalculateSnapshot(in Input) *RunSnapshot {
	startTime := time.Now()
	now := startTime.UTC()

	snap := &RunSnapshot{
		FileID:    in.FileID,
		Timestamp: now,
		Metadata:  in.Metadata,
		KPIs:      []kpi.CalculatedKPI{},
	}
	if in.Result != nil {
		snap.RunID = in.Result.RunID
		snap.KPIs = in.Result.CalculatedKPIs
		snap.Metadata.KPIFailures = len(in.Result.Failures)
		if !in.Result.Timestamp.IsZero() {
			snap.Timestamp = in.Result.Timestamp
		}
	}
	snap.SnapshotID = NewSnapshotID(snap.Timestamp, snap.RunID)

	hosts := make(map[string]*HostFindingStat)
	for _, p := range in.Findings {
		sev := p.Canonical.Severity
		snap.Counts.add(sev)

		ip := p.Canonical.IPSource
		if ip == "" {
			ip = kpi.UnknownHost
		}
		h, ok := hosts[ip]
		if !ok {
			h = &HostFindingStat{HostIP: ip}
			hosts[ip] = h
		}
		h.add(sev)
	}

	snap.ByHost = make([]HostFindingStat, 0, len(hosts))
	for _, h := range hosts {
		snap.ByHost = append(snap.ByHost, *h)
	}
	sort.Slice(snap.ByHost, func(i, j int) bool {
		if snap.ByHost[i].Total != snap.ByHost[j].Total {
			return snap.ByHost[i].Total > snap.ByHost[j].Total
		}
		return snap.ByHost[i].HostIP < snap.ByHost[j].HostIP
	})

	snap.Metadata.SnapshotDurationMs = time.Since(startTime).Milliseconds()
	return snap
}

// SaveSnapshot stores snap under KeyPrefix + SnapshotID.
func (sc *SnapshotCalculator) SaveSnapshot(ctx context.Context, snap *RunSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := KeyPrefix + snap.SnapshotID
	if err := sc.kvStore.SetValue(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}

// NewSnapshotID returns an id that sorts chronologically.
// Format: YYYY-MM-DD-HHMMSS.ffffff-<run id prefix>
func NewSnapshotID(at time.Time, runID string) string {
	id := at.UTC().Format("2006-01-02-150405.000000")
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID != "" {
		id += "-" + runID
	}
	return id
}
