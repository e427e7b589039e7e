package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UploadStatusTTL is how long a cached upload status is kept.
const UploadStatusTTL = 24 * time.Hour

// UploadStatus is the cached outcome of an upload job, read by the dashboard
// while the relational row may still be pending.
type UploadStatus struct {
	FileID    uint      `json:"file_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Format    string    `json:"format,omitempty"`
	Accepted  int       `json:"accepted"`
	Rejected  int       `json:"rejected"`
	Truncated bool      `json:"truncated"`
	RunID     string    `json:"run_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresIn is the remaining cache lifetime in seconds, filled on read.
	ExpiresIn int `json:"expires_in_seconds,omitempty"`
}

// UploadStatusKey returns the key holding the status of fileID.
func UploadStatusKey(fileID uint) string {
	return fmt.Sprintf("ingest:upload:%d", fileID)
}

// SaveUploadStatus stores status under its key with UploadStatusTTL.
func SaveUploadStatus(ctx context.Context, kv KVStore, status UploadStatus) error {
	status.ExpiresIn = 0
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal upload status: %w", err)
	}
	key := UploadStatusKey(status.FileID)
	if err := kv.SetValueWithTTL(ctx, key, string(data), int(UploadStatusTTL.Seconds())); err != nil {
		return fmt.Errorf("failed to store upload status %s: %w", key, err)
	}
	return nil
}

// GetUploadStatus loads the cached status of fileID.
func GetUploadStatus(ctx context.Context, kv KVStore, fileID uint) (*UploadStatus, error) {
	key := UploadStatusKey(fileID)
	resp, err := kv.GetValue(ctx, key)
	if err != nil {
		return nil, err
	}
	var status UploadStatus
	if err := json.Unmarshal([]byte(resp.Message.Value), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload status %s: %w", key, err)
	}
	ttl, err := kv.GetTTL(ctx, key)
	if err != nil {
		return nil, err
	}
	status.ExpiresIn = max(ttl, 0)
	return &status, nil
}
