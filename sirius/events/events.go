package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SiriusScan/go-ingest/sirius/postgres"
	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
)

// ServiceName is the service column of every event this module records.
const ServiceName = "sirius-ingest"

// EventFilters represents filters for querying events
type EventFilters struct {
	Limit      int
	Offset     int
	Severity   string
	EventType  string
	StartTime  *time.Time
	EndTime    *time.Time
	EntityType string
	EntityID   string
}

// NewEvent describes an event to record.
type NewEvent struct {
	Subcomponent string
	EventType    string
	Severity     string
	Title        string
	Description  string
	EntityType   string
	EntityID     string
	Metadata     map[string]interface{}
}

// Repository stores ingestion events.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a Repository. A nil db uses postgres.GetDB().
func NewRepository(db *gorm.DB) *Repository {
	if db == nil {
		db = postgres.GetDB()
	}
	return &Repository{db: db}
}

// Record inserts an event with a fresh event id.
func (r *Repository) Record(ctx context.Context, e NewEvent) (*models.Event, error) {
	if r.db == nil {
		return nil, postgres.ErrNoConnection
	}
	if e.Severity == "" {
		e.Severity = models.SeverityInfo
	}
	if !models.IsValidSeverity(e.Severity) {
		return nil, fmt.Errorf("invalid event severity %q", e.Severity)
	}

	now := time.Now().UTC()
	event := &models.Event{
		EventID:      uuid.NewString(),
		Timestamp:    now,
		Service:      ServiceName,
		Subcomponent: e.Subcomponent,
		EventType:    e.EventType,
		Severity:     e.Severity,
		Title:        e.Title,
		Description:  e.Description,
		Metadata:     models.JSONB(e.Metadata),
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		CreatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}
	return event, nil
}

// GetEvents retrieves events with filters, newest first, and the total count
// before pagination.
func (r *Repository) GetEvents(ctx context.Context, filters EventFilters) ([]models.Event, int, error) {
	if r.db == nil {
		return nil, 0, postgres.ErrNoConnection
	}

	query := r.db.WithContext(ctx).Model(&models.Event{}).Where("service = ?", ServiceName)
	if filters.Severity != "" {
		query = query.Where("severity = ?", filters.Severity)
	}
	if filters.EventType != "" {
		query = query.Where("event_type = ?", filters.EventType)
	}
	if filters.EntityType != "" {
		query = query.Where("entity_type = ?", filters.EntityType)
	}
	if filters.EntityID != "" {
		query = query.Where("entity_id = ?", filters.EntityID)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	filters = clampPage(filters)

	var events []models.Event
	err := query.
		Order("timestamp DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}

	return events, int(total), nil
}

// GetEventsByEntity retrieves all events for a specific entity
func (r *Repository) GetEventsByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.Event, error) {
	events, _, err := r.GetEvents(ctx, EventFilters{EntityType: entityType, EntityID: entityID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to get events by entity: %w", err)
	}
	return events, nil
}

func clampPage(f EventFilters) EventFilters {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
