// File: event.go
package models

import (
	"time"
)

// Event is an ingestion or calculation event stored in PostgreSQL
type Event struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      string    `gorm:"uniqueIndex;not null;size:255" json:"event_id"`
	Timestamp    time.Time `gorm:"not null;default:NOW();index:idx_events_timestamp,sort:desc" json:"timestamp"`
	Service      string    `gorm:"not null;size:100;index:idx_events_service" json:"service"`
	Subcomponent string    `gorm:"size:100" json:"subcomponent,omitempty"`
	EventType    string    `gorm:"not null;size:50;index:idx_events_type" json:"event_type"`
	Severity     string    `gorm:"not null;size:20;index:idx_events_severity" json:"severity"`
	Title        string    `gorm:"not null;size:255" json:"title"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	Metadata     JSONB     `gorm:"type:jsonb" json:"metadata,omitempty"`
	EntityType   string    `gorm:"size:50;index:idx_events_entity,priority:1" json:"entity_type,omitempty"`
	EntityID     string    `gorm:"size:255;index:idx_events_entity,priority:2" json:"entity_id,omitempty"`
	CreatedAt    time.Time `gorm:"not null;default:NOW()" json:"created_at"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}

// EventSeverity constants for event severity levels
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// EventType constants
const (
	EventTypeUploadReceived   = "upload_received"
	EventTypeUploadProcessed  = "upload_processed"
	EventTypeUploadFailed     = "upload_failed"
	EventTypeFindingsRejected = "findings_rejected"
	EventTypeKPIRunCompleted  = "kpi_run_completed"
	EventTypeKPIRunFailed     = "kpi_run_failed"
	EventTypeMetadataTimeout  = "metadata_timeout"
)

// EntityType constants
const (
	EntityTypeFile   = "file"
	EntityTypeKPIRun = "kpi_run"
	EntityTypeTool   = "tool"
)

// IsValidSeverity checks if a severity level is valid
func IsValidSeverity(severity string) bool {
	switch severity {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	default:
		return false
	}
}
