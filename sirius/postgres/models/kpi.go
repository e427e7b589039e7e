// File: kpi.go
package models

import (
	"time"
)

// KPI is a catalog entry. The ingest service only reads it.
type KPI struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"index" json:"name"`
	Description     string    `json:"description,omitempty"`
	Level           string    `gorm:"not null" json:"level"`
	Type            string    `gorm:"not null" json:"type"`
	Target          string    `gorm:"not null" json:"target"`
	Unit            string    `json:"unit,omitempty"`
	Frequency       string    `gorm:"not null" json:"frequency"`
	Formula         string    `json:"formula,omitempty"`
	ReportingFormat string    `json:"reporting_format,omitempty"`
	DataSource      string    `json:"data_source,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (KPI) TableName() string {
	return "kpis"
}

// KPIValue is one appended value in a KPI's history.
type KPIValue struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	KPIID     uint      `gorm:"column:kpi_id;not null;index:idx_kpi_values_kpi,priority:1" json:"kpi_id"`
	RunID     string    `gorm:"size:36;index:idx_kpi_values_run" json:"run_id"`
	Value     float64   `gorm:"not null" json:"value"`
	Timestamp time.Time `gorm:"not null;default:NOW();index:idx_kpi_values_kpi,priority:2,sort:desc" json:"timestamp"`
}

func (KPIValue) TableName() string {
	return "kpi_values"
}
