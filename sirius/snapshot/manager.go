package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/SiriusScan/go-ingest/sirius/store"
)

// DefaultRetention is the number of run snapshots kept.
const DefaultRetention = 10

// SnapshotManager handles snapshot CRUD operations and lifecycle management
type SnapshotManager struct {
	kvStore    store.KVStore
	calculator *SnapshotCalculator
	retention  int
}

// NewSnapshotManager creates a SnapshotManager keeping the retention most
// recent snapshots. A non-positive retention uses DefaultRetention.
func NewSnapshotManager(kvStore store.KVStore, retention int) *SnapshotManager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SnapshotManager{
		kvStore:    kvStore,
		calculator: NewSnapshotCalculator(kvStore),
		retention:  retention,
	}
}

// CreateSnapshot calculates, stores and returns the snapshot for in, then
// prunes snapshots beyond the retention limit.
func (sm *SnapshotManager) CreateSnapshot(ctx context.Context, in Input) (*RunSnapshot, error) {
	snap := sm.calculator.CalculateSnapshot(in)
	if err := sm.calculator.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	if err := sm.CleanupOldSnapshots(ctx); err != nil {
		slog.Warn("Failed to cleanup old snapshots", "error", err)
	}
	return snap, nil
}

// GetSnapshot retrieves a specific snapshot by snapshot ID
func (sm *SnapshotManager) GetSnapshot(ctx context.Context, snapshotID string) (*RunSnapshot, error) {
	resp, err := sm.kvStore.GetValue(ctx, KeyPrefix+snapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot not found for ID %s: %w", snapshotID, err)
	}

	var snap RunSnapshot
	if err := json.Unmarshal([]byte(resp.Message.Value), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns all snapshot IDs, most recent first.
func (sm *SnapshotManager) ListSnapshots(ctx context.Context) ([]string, error) {
	keys, err := sm.kvStore.ListKeys(ctx, KeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id, ok := strings.CutPrefix(key, KeyPrefix); ok && id != "" {
			ids = append(ids, id)
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// GetTrendData returns up to limit of the most recent snapshots, never more
// than the retention limit.
func (sm *SnapshotManager) GetTrendData(ctx context.Context, limit int) ([]*RunSnapshot, error) {
	if limit <= 0 || limit > sm.retention {
		limit = sm.retention
	}

	ids, err := sm.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	snapshots := make([]*RunSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := sm.GetSnapshot(ctx, id)
		if err != nil {
			slog.Debug("Skipping unreadable snapshot", "snapshot_id", id, "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// CleanupOldSnapshots deletes all but the retention most recent snapshots.
func (sm *SnapshotManager) CleanupOldSnapshots(ctx context.Context) error {
	ids, err := sm.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(ids) <= sm.retention {
		return nil
	}

	for _, id := range ids[sm.retention:] {
		key := KeyPrefix + id
		if err := sm.kvStore.DeleteValue(ctx, key); err != nil {
			slog.Warn("Failed to delete old snapshot", "key", key, "error", err)
		}
	}
	return nil
}

// GetLatestSnapshot retrieves the most recent snapshot
func (sm *SnapshotManager) GetLatestSnapshot(ctx context.Context) (*RunSnapshot, error) {
	ids, err := sm.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no snapshots available")
	}
	return sm.GetSnapshot(ctx, ids[0])
}
