// Package normalizer maps raw extractor records onto the canonical finding
// schema, validating every field it sets.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/SiriusScan/go-ingest/sirius"
)

// Accepted event_time layouts, tried in order. Layouts without a zone are
// interpreted as UTC.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"Mon Jan _2 15:04:05 2006",
	"Jan _2 2006 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02",
}

const (
	MinCVSS = 0.0
	MaxCVSS = 10.0
)

// FieldValidationError identifies the field and value that failed validation.
type FieldValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Normalize converts raw into a CanonicalFinding. It has no side effects:
// the same input always yields the same finding or the same error.
func Normalize(raw sirius.RawFinding) (sirius.CanonicalFinding, error) {
	var out sirius.CanonicalFinding

	if v, ok := raw.Value(sirius.KeyEventTime); ok {
		t, err := parseEventTime(v)
		if err != nil {
			return sirius.CanonicalFinding{}, err
		}
		out.EventTime = t
	}

	if s, ok := raw.String(sirius.KeySeverity); ok {
		sev := sirius.Severity(s)
		if !sev.IsValid() {
			return sirius.CanonicalFinding{}, &FieldValidationError{
				Field:  sirius.KeySeverity,
				Value:  s,
				Reason: fmt.Sprintf("must be one of %v", sirius.Severities()),
			}
		}
		out.Severity = sev
	}

	if v, ok := raw.Value(sirius.KeyBandwidth); ok {
		bw, err := number(sirius.KeyBandwidth, v)
		if err != nil {
			return sirius.CanonicalFinding{}, err
		}
		if bw != nil {
			if *bw < 0 {
				return sirius.CanonicalFinding{}, &FieldValidationError{
					Field: sirius.KeyBandwidth, Value: *bw, Reason: "must be non-negative",
				}
			}
			out.Bandwidth = bw
		}
	}

	if v, ok := raw.Value(sirius.KeyCVSSBaseScore); ok {
		score, err := number(sirius.KeyCVSSBaseScore, v)
		if err != nil {
			return sirius.CanonicalFinding{}, err
		}
		if score != nil {
			if *score < MinCVSS || *score > MaxCVSS {
				return sirius.CanonicalFinding{}, &FieldValidationError{
					Field: sirius.KeyCVSSBaseScore, Value: *score, Reason: "must be between 0.0 and 10.0",
				}
			}
			out.CVSSBaseScore = score
		}
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{sirius.KeyIPSource, &out.IPSource},
		{sirius.KeyIPDestination, &out.IPDestination},
	} {
		s, ok := raw.String(f.key)
		if !ok {
			continue
		}
		if _, err := netip.ParseAddr(s); err != nil {
			return sirius.CanonicalFinding{}, &FieldValidationError{
				Field: f.key, Value: s, Reason: "not a valid IPv4 or IPv6 address",
			}
		}
		*f.dst = s
	}

	out.Action, _ = raw.String(sirius.KeyAction)
	out.AttackType, _ = raw.String(sirius.KeyAttackType)
	out.Policy, _ = raw.String(sirius.KeyPolicy)
	out.VulnerabilityName, _ = raw.String(sirius.KeyVulnerabilityName)
	out.MalwareType, _ = raw.String(sirius.KeyMalwareType)
	out.QuarantineStatus, _ = raw.String(sirius.KeyQuarantineStatus)
	out.LogType, _ = raw.String(sirius.KeyLogType)
	out.AppName, _ = raw.String(sirius.KeyAppName)
	out.CountryCode, _ = raw.String(sirius.KeyCountryCode)

	return out, nil
}

func parseEventTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		utc := t.UTC()
		return &utc, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		utc := t.UTC()
		return &utc, nil
	}

	text := strings.TrimSpace(fmt.Sprint(v))
	if text == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, &FieldValidationError{
		Field: sirius.KeyEventTime, Value: text, Reason: "does not match any accepted timestamp format",
	}
}

// number coerces numeric kinds and numeric strings. A nil result with a nil
// error means the field is empty.
func number(field string, v any) (*float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil, &FieldValidationError{Field: field, Value: t, Reason: "not a number"}
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &FieldValidationError{Field: field, Value: t, Reason: "not a number"}
		}
		f = parsed
	default:
		return nil, &FieldValidationError{Field: field, Value: v, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &FieldValidationError{Field: field, Value: f, Reason: "not a finite number"}
	}
	return &f, nil
}
