// File: upload_repository.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
)

// UploadRepository tracks upload status and persists normalized findings.
type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// SetFileStatus moves an upload to status.
func (r *UploadRepository) SetFileStatus(ctx context.Context, fileID uint, status string) error {
	if r.db == nil {
		return ErrNoConnection
	}
	if !models.IsValidFileStatus(status) {
		return fmt.Errorf("invalid file status %q", status)
	}

	result := r.db.WithContext(ctx).Model(&models.File{}).Where("id = ?", fileID).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update status of file %d: %w", fileID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("file not found: %d", fileID)
	}
	return nil
}

// SaveFindings writes one logs row per pair inside a single transaction and
// returns the number of rows written.
func (r *UploadRepository) SaveFindings(ctx context.Context, fileID, toolID uint, pairs []sirius.Pair) (int, error) {
	if r.db == nil {
		return 0, ErrNoConnection
	}
	if len(pairs) == 0 {
		return 0, nil
	}

	rows := make([]models.Log, 0, len(pairs))
	for i, p := range pairs {
		row, err := LogFromPair(fileID, toolID, p)
		if err != nil {
			return 0, fmt.Errorf("finding %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save findings for file %d: %w", fileID, err)
	}
	return len(rows), nil
}

// LogFromPair maps a normalized finding onto a logs row.
func LogFromPair(fileID, toolID uint, p sirius.Pair) (models.Log, error) {
	raw, err := sirius.MarshalRaw(p.Raw)
	if err != nil {
		return models.Log{}, err
	}
	parsed, err := json.Marshal(p.Canonical)
	if err != nil {
		return models.Log{}, fmt.Errorf("failed to encode normalized finding: %w", err)
	}

	c := p.Canonical
	return models.Log{
		FileID:            fileID,
		ToolID:            toolID,
		Status:            models.LogStatusSuccess,
		RawData:           raw,
		ParsedData:        string(parsed),
		EventTime:         c.EventTime,
		Action:            c.Action,
		AttackType:        c.AttackType,
		Policy:            c.Policy,
		Bandwidth:         c.Bandwidth,
		IPSource:          c.IPSource,
		IPDestination:     c.IPDestination,
		Severity:          string(c.Severity),
		CVSSBaseScore:     c.CVSSBaseScore,
		VulnerabilityName: c.VulnerabilityName,
		MalwareType:       c.MalwareType,
		QuarantineStatus:  c.QuarantineStatus,
		LogType:           c.LogType,
		AppName:           c.AppName,
		CountryCode:       c.CountryCode,
	}, nil
}

// FindingsByFile rebuilds the pairs persisted for an upload.
func (r *UploadRepository) FindingsByFile(ctx context.Context, fileID uint) ([]sirius.Pair, error) {
	if r.db == nil {
		return nil, ErrNoConnection
	}

	var rows []models.Log
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND status = ?", fileID, models.LogStatusSuccess).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query findings for file %d: %w", fileID, err)
	}

	pairs := make([]sirius.Pair, 0, len(rows))
	for _, row := range rows {
		var p sirius.Pair
		if row.RawData != "" {
			if err := json.Unmarshal([]byte(row.RawData), &p.Raw); err != nil {
				return nil, fmt.Errorf("log %d: failed to decode raw data: %w", row.ID, err)
			}
		}
		if row.ParsedData != "" {
			if err := json.Unmarshal([]byte(row.ParsedData), &p.Canonical); err != nil {
				return nil, fmt.Errorf("log %d: failed to decode parsed data: %w", row.ID, err)
			}
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
