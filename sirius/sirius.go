package sirius

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ========================= SEVERITY =========================

// Severity is the canonical ordinal risk classification.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// severityByCode is indexed by the scanner's numeric severity code (0-4).
var severityByCode = [...]Severity{
	SeverityInfo,
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

// Severities returns the canonical severity names in ascending order.
func Severities() []Severity {
	out := make([]Severity, len(severityByCode))
	copy(out, severityByCode[:])
	return out
}

// SeverityFromCode maps a numeric severity code to its canonical name.
// Missing, non-numeric and out-of-range codes map to Info.
func SeverityFromCode(code string) Severity {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n < 0 || n >= len(severityByCode) {
		return SeverityInfo
	}
	return severityByCode[n]
}

// IsValid reports whether s is one of the five canonical names (case-sensitive).
func (s Severity) IsValid() bool {
	for _, known := range severityByCode {
		if s == known {
			return true
		}
	}
	return false
}

// IsHighOrCritical reports whether s is High or Critical.
func (s Severity) IsHighOrCritical() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ========================= RAW FINDING =========================

// Raw finding keys shared by extractors and the normalizer.
const (
	KeyEventTime         = "event_time"
	KeyAction            = "action"
	KeyAttackType        = "attack_type"
	KeyPolicy            = "policy"
	KeyBandwidth         = "bandwidth"
	KeyIPSource          = "ip_source"
	KeyIPDestination     = "ip_destination"
	KeySeverity          = "severity"
	KeyCVSSBaseScore     = "cvss_base_score"
	KeyVulnerabilityName = "vulnerability_name"
	KeyMalwareType       = "malware_type"
	KeyQuarantineStatus  = "quarantine_status"
	KeyLogType           = "log_type"
	KeyAppName           = "app_name"
	KeyCountryCode       = "country_code"
	KeyExploitable       = "exploitable"
)

// RawFinding is the tool-specific key/value bag produced by an extractor.
// Callers treat it as read-only once extracted.
type RawFinding map[string]any

// Value returns the value stored under key.
func (r RawFinding) Value(key string) (any, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether key carries a non-nil value.
func (r RawFinding) Has(key string) bool {
	_, ok := r.Value(key)
	return ok
}

// String returns the value under key rendered as a trimmed string.
// Empty strings are reported as absent.
func (r RawFinding) String(key string) (string, bool) {
	v, ok := r.Value(key)
	if !ok {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Bool returns the value under key as a boolean. Strings are compared
// case-insensitively against "true".
func (r RawFinding) Bool(key string) bool {
	v, ok := r.Value(key)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

// Clone returns a shallow copy that can be mutated without affecting r.
func (r RawFinding) Clone() RawFinding {
	out := make(RawFinding, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ========================= CANONICAL FINDING =========================

// CanonicalFinding is the validated, tool-independent finding record.
// Absent optional fields are omitted from serialization.
type CanonicalFinding struct {
	EventTime         *time.Time `json:"event_time,omitempty"`
	Action            string     `json:"action,omitempty"`
	AttackType        string     `json:"attack_type,omitempty"`
	Policy            string     `json:"policy,omitempty"`
	Bandwidth         *float64   `json:"bandwidth,omitempty"`
	IPSource          string     `json:"ip_source,omitempty"`
	IPDestination     string     `json:"ip_destination,omitempty"`
	Severity          Severity   `json:"severity,omitempty"`
	CVSSBaseScore     *float64   `json:"cvss_base_score,omitempty"`
	VulnerabilityName string     `json:"vulnerability_name,omitempty"`
	MalwareType       string     `json:"malware_type,omitempty"`
	QuarantineStatus  string     `json:"quarantine_status,omitempty"`
	LogType           string     `json:"log_type,omitempty"`
	AppName           string     `json:"app_name,omitempty"`
	CountryCode       string     `json:"country_code,omitempty"`
}

// Pair couples a raw record with its normalized counterpart.
type Pair struct {
	Raw       RawFinding       `json:"raw_finding"`
	Canonical CanonicalFinding `json:"normalized_finding"`
}

// Exploitable reports whether the scanner flagged the finding as exploitable.
func (p Pair) Exploitable() bool {
	return p.Raw.Bool(KeyExploitable)
}

// ParseResponse is the wire shape of a pipeline result.
type ParseResponse struct {
	Findings []Pair `json:"findings"`
}

// MarshalRaw renders a raw finding as JSON for storage alongside its
// normalized row.
func MarshalRaw(r RawFinding) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal raw finding: %w", err)
	}
	return string(data), nil
}

// ========================= TOOL =========================

// ToolDescriptor identifies the scanner that produced an uploaded report.
type ToolDescriptor struct {
	ID   uint   `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
}
