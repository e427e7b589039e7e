package normalizer

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiriusScan/go-ingest/sirius"
)

func TestNormalizeFullRecord(t *testing.T) {
	t.Log("\n🔍 Testing normalization of a complete record...")

	raw := sirius.RawFinding{
		sirius.KeyEventTime:         "2024-03-01T10:20:30",
		sirius.KeyIPDestination:     "192.168.1.10",
		sirius.KeyIPSource:          "2001:db8::1",
		sirius.KeySeverity:          "Critical",
		sirius.KeyCVSSBaseScore:     "9.8",
		sirius.KeyBandwidth:         100,
		sirius.KeyVulnerabilityName: "OpenSSL Heartbleed",
		sirius.KeyLogType:           "vulnerability_scan",
		sirius.KeyAppName:           "Nessus",
		sirius.KeyPolicy:            "PCI",
	}

	got, err := Normalize(raw)
	require.NoError(t, err)

	require.NotNil(t, got.EventTime)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC), *got.EventTime)
	assert.Equal(t, "192.168.1.10", got.IPDestination)
	assert.Equal(t, "2001:db8::1", got.IPSource)
	assert.Equal(t, sirius.SeverityCritical, got.Severity)
	require.NotNil(t, got.CVSSBaseScore)
	assert.InDelta(t, 9.8, *got.CVSSBaseScore, 1e-9)
	require.NotNil(t, got.Bandwidth)
	assert.Equal(t, 100.0, *got.Bandwidth)
	assert.Equal(t, "OpenSSL Heartbleed", got.VulnerabilityName)
	assert.Equal(t, "PCI", got.Policy)

	t.Log("✅ Complete record normalization test passed")
}

func TestNormalizeEmptyRecord(t *testing.T) {
	got, err := Normalize(sirius.RawFinding{})
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data), "absent optional fields are omitted")
}

func TestNormalizeCVSSRange(t *testing.T) {
	t.Log("\n🔍 Testing CVSS range validation...")

	for _, ok := range []any{0.0, "0", 10.0, "10.0", 5, json.Number("7.5")} {
		_, err := Normalize(sirius.RawFinding{sirius.KeyCVSSBaseScore: ok})
		assert.NoError(t, err, "score %v", ok)
	}

	for _, bad := range []any{-0.1, 10.01, "11", "high", math.NaN(), math.Inf(1), []int{1}} {
		_, err := Normalize(sirius.RawFinding{sirius.KeyCVSSBaseScore: bad})
		var fe *FieldValidationError
		require.True(t, errors.As(err, &fe), "score %v", bad)
		assert.Equal(t, sirius.KeyCVSSBaseScore, fe.Field)
	}

	got, err := Normalize(sirius.RawFinding{sirius.KeyCVSSBaseScore: "  "})
	require.NoError(t, err)
	assert.Nil(t, got.CVSSBaseScore, "blank score is absent")

	t.Log("✅ CVSS range validation test passed")
}

func TestNormalizeIPAddresses(t *testing.T) {
	for _, ip := range []string{"10.0.0.1", "255.255.255.255", "::1", "fe80::1"} {
		got, err := Normalize(sirius.RawFinding{sirius.KeyIPDestination: ip})
		require.NoError(t, err, ip)
		assert.Equal(t, ip, got.IPDestination)
	}

	for _, ip := range []string{"256.0.0.1", "host.example.com", "10.0.0", "10.0.0.1/24"} {
		_, err := Normalize(sirius.RawFinding{sirius.KeyIPSource: ip})
		var fe *FieldValidationError
		require.True(t, errors.As(err, &fe), ip)
		assert.Equal(t, sirius.KeyIPSource, fe.Field)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	got, err := Normalize(sirius.RawFinding{sirius.KeySeverity: "Info"})
	require.NoError(t, err)
	assert.Equal(t, sirius.SeverityInfo, got.Severity)

	_, err = Normalize(sirius.RawFinding{sirius.KeySeverity: "critical"})
	var fe *FieldValidationError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, sirius.KeySeverity, fe.Field)
}

func TestNormalizeEventTimeLayouts(t *testing.T) {
	t.Log("\n🔍 Testing event time layouts...")

	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, text := range []string{
		"2024-01-02T03:04:05",
		"2024-01-02 03:04:05",
		"Tue Jan  2 03:04:05 2024",
		"Jan  2 2024 03:04:05",
		"2024-01-02T05:04:05+02:00",
		"2024-01-02 05:04:05+02:00",
		"2024-01-02 03:04:05Z",
		"2024-01-02T05:04:05+0200",
		"2024-01-02 01:04:05.000-0200",
	} {
		got, err := Normalize(sirius.RawFinding{sirius.KeyEventTime: text})
		require.NoError(t, err, text)
		require.NotNil(t, got.EventTime, text)
		assert.True(t, want.Equal(*got.EventTime), "%s parsed as %s", text, got.EventTime)
		assert.Equal(t, time.UTC, got.EventTime.Location())
	}

	got, err := Normalize(sirius.RawFinding{sirius.KeyEventTime: "2024-01-02"})
	require.NoError(t, err)
	require.NotNil(t, got.EventTime)
	assert.True(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Equal(*got.EventTime), "date only is midnight UTC")

	_, err = Normalize(sirius.RawFinding{sirius.KeyEventTime: "yesterday"})
	var fe *FieldValidationError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, sirius.KeyEventTime, fe.Field)

	t.Log("✅ Event time layouts test passed")
}

func TestNormalizeNegativeBandwidth(t *testing.T) {
	_, err := Normalize(sirius.RawFinding{sirius.KeyBandwidth: -1})
	var fe *FieldValidationError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, sirius.KeyBandwidth, fe.Field)
}

func TestNormalizeIsPure(t *testing.T) {
	raw := sirius.RawFinding{
		sirius.KeySeverity:      "High",
		sirius.KeyIPDestination: "10.1.1.1",
		sirius.KeyCVSSBaseScore: "7.2",
	}
	before := raw.Clone()

	first, err := Normalize(raw)
	require.NoError(t, err)
	second, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, raw, "input must not be mutated")
}
