// File: kpi_repository.go
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

// KPIRepository reads the KPI catalog and appends KPI values.
type KPIRepository struct {
	db *gorm.DB
}

func NewKPIRepository(db *gorm.DB) *KPIRepository {
	return &KPIRepository{db: db}
}

// ListKPIs returns every catalog entry ordered by id.
func (r *KPIRepository) ListKPIs(ctx context.Context) ([]kpi.Definition, error) {
	if r.db == nil {
		return nil, ErrNoConnection
	}

	var rows []models.KPI
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query KPIs: %w", err)
	}

	defs := make([]kpi.Definition, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, kpi.Definition{
			ID:        row.ID,
			Name:      row.Name,
			Type:      row.Type,
			Formula:   row.Formula,
			Unit:      row.Unit,
			Target:    row.Target,
			Level:     row.Level,
			Frequency: row.Frequency,
		})
	}
	return defs, nil
}

// AppendValues inserts all values in a single transaction.
func (r *KPIRepository) AppendValues(ctx context.Context, values []kpi.Value) error {
	if r.db == nil {
		return ErrNoConnection
	}
	if len(values) == 0 {
		return nil
	}

	rows := make([]models.KPIValue, 0, len(values))
	for _, v := range values {
		rows = append(rows, models.KPIValue{
			KPIID:     v.KPIID,
			RunID:     v.RunID,
			Value:     v.Value,
			Timestamp: v.Timestamp,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert KPI values: %w", err)
		}
		return nil
	})
}

// History returns the latest values of a KPI, newest first.
func (r *KPIRepository) History(ctx context.Context, kpiID uint, limit int) ([]models.KPIValue, error) {
	if r.db == nil {
		return nil, ErrNoConnection
	}
	if limit <= 0 {
		limit = 50
	}

	var values []models.KPIValue
	err := r.db.WithContext(ctx).
		Where("kpi_id = ?", kpiID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&values).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get KPI history: %w", err)
	}
	return values, nil
}

// ValuesByRun returns the values appended by one calculation run.
func (r *KPIRepository) ValuesByRun(ctx context.Context, runID string) ([]models.KPIValue, error) {
	if r.db == nil {
		return nil, ErrNoConnection
	}

	var values []models.KPIValue
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("kpi_id").Find(&values).Error; err != nil {
		return nil, fmt.Errorf("failed to get values for run %s: %w", runID, err)
	}
	return values, nil
}
