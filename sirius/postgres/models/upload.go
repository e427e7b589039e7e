// File: upload.go
package models

import (
	"time"
)

type Tool struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"index" json:"name"`
	Description   string    `json:"description,omitempty"`
	Type          string    `gorm:"not null" json:"type"`
	Category      string    `gorm:"not null" json:"category"`
	Vendor        string    `json:"vendor,omitempty"`
	Version       string    `json:"version,omitempty"`
	Configuration string    `json:"configuration,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Tool) TableName() string {
	return "tools"
}

// File is an uploaded report.
type File struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Filename   string    `gorm:"not null" json:"filename"`
	FilePath   string    `gorm:"not null" json:"file_path"`
	FileType   string    `gorm:"not null" json:"file_type"`
	UploadedBy uint      `gorm:"not null" json:"uploaded_by"`
	Size       int64     `gorm:"not null" json:"size"`
	Status     string    `gorm:"not null;default:pending;size:20" json:"status"`
	MD5Hash    string    `gorm:"column:md5_hash;not null" json:"md5_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

func (File) TableName() string {
	return "files"
}

// Upload statuses
const (
	FileStatusPending   = "pending"
	FileStatusProcessed = "processed"
	FileStatusFailed    = "failed"
)

// IsValidFileStatus checks if a file status is one of the known states
func IsValidFileStatus(status string) bool {
	switch status {
	case FileStatusPending, FileStatusProcessed, FileStatusFailed:
		return true
	default:
		return false
	}
}

// Log is one canonical finding persisted from an upload.
type Log struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	FileID            uint       `gorm:"not null;index" json:"file_id"`
	ToolID            uint       `gorm:"not null;index" json:"tool_id"`
	Status            string     `gorm:"not null;size:20" json:"status"`
	Message           string     `json:"message,omitempty"`
	RawData           string     `gorm:"type:text" json:"raw_data,omitempty"`
	ParsedData        string     `gorm:"type:text" json:"parsed_data,omitempty"`
	EventTime         *time.Time `json:"event_time,omitempty"`
	Action            string     `json:"action,omitempty"`
	AttackType        string     `json:"attack_type,omitempty"`
	Policy            string     `json:"policy,omitempty"`
	Bandwidth         *float64   `json:"bandwidth,omitempty"`
	IPSource          string     `gorm:"column:ip_source;index" json:"ip_source,omitempty"`
	IPDestination     string     `gorm:"column:ip_destination" json:"ip_destination,omitempty"`
	Severity          string     `gorm:"size:20;index" json:"severity,omitempty"`
	CVSSBaseScore     *float64   `gorm:"column:cvss_base_score" json:"cvss_base_score,omitempty"`
	VulnerabilityName string     `json:"vulnerability_name,omitempty"`
	MalwareType       string     `json:"malware_type,omitempty"`
	QuarantineStatus  string     `json:"quarantine_status,omitempty"`
	LogType           string     `json:"log_type,omitempty"`
	AppName           string     `json:"app_name,omitempty"`
	CountryCode       string     `json:"country_code,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (Log) TableName() string {
	return "logs"
}

const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)
