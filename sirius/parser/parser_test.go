package parser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiriusScan/go-ingest/sirius"
)

type stubParser struct{ format string }

func (s stubParser) Format() string { return s.format }

func (s stubParser) Detect([]byte) FormatVerdict { return FormatVerdict{Recognized: true} }

func (s stubParser) Decode([]byte) (Document, error) { return nil, nil }

func (s stubParser) Validate(Document) error { return nil }

func (s stubParser) Extract(context.Context, Document) *Extraction {
	return NewExtraction(func(func(sirius.RawFinding) bool, *ExtractionStats) {})
}

func TestRegistrySelect(t *testing.T) {
	t.Log("\n🔍 Testing parser selection...")

	reg := NewRegistry()
	reg.Register(ToolTypeVulnerabilityScanner, "nessus", stubParser{format: "nessus"})

	for _, tool := range []sirius.ToolDescriptor{
		{Name: "Nessus", Type: "vulnerability scanner"},
		{Name: "NESSUS Essentials", Type: "Vulnerability_Scanner"},
		{Name: "nessus", Type: "  vulnerability   scanner "},
	} {
		p, err := reg.Select(tool)
		require.NoError(t, err, tool)
		assert.Equal(t, "nessus", p.Format())
	}

	_, err := reg.Select(sirius.ToolDescriptor{Name: "OpenVAS", Type: "vulnerability_scanner"})
	var unsupported *UnsupportedToolError
	require.True(t, errors.As(err, &unsupported))
	assert.Contains(t, err.Error(), "vulnerability scanner 'OpenVAS' is not supported yet")

	_, err = reg.Select(sirius.ToolDescriptor{Name: "Snort", Type: "ids"})
	require.True(t, errors.As(err, &unsupported))
	assert.Contains(t, err.Error(), "tool type 'ids' is not supported yet")

	t.Log("✅ Parser selection test passed")
}

func TestRemediation(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&UnrecognizedFormatError{Format: "Nessus v2"}, "'.nessus' format"},
		{&MalformedDocumentError{Format: "Nessus v2", Err: errors.New("EOF")}, "invalid XML"},
		{&StructuralValidationError{Reason: ReasonNoHosts}, "no host records"},
		{&StructuralValidationError{Reason: ReasonNoFindings}, "no findings"},
		{&StructuralValidationError{Reason: ReasonMissingPluginAttributes}, "file structure is not valid"},
		{fmt.Errorf("wrapped: %w", &UnsupportedToolError{ToolType: "ids"}), "not supported yet"},
	}
	for _, tc := range cases {
		text, ok := Remediation(tc.err)
		assert.True(t, ok, tc.err)
		assert.Contains(t, text, tc.want)
	}

	_, ok := Remediation(errors.New("boom"))
	assert.False(t, ok)
}

func TestExtractionStats(t *testing.T) {
	ext := NewExtraction(func(yield func(sirius.RawFinding) bool, stats *ExtractionStats) {
		for i := range 5 {
			stats.Emitted++
			if !yield(sirius.RawFinding{"i": i}) {
				return
			}
		}
		stats.Truncated = true
	})

	n := 0
	for range ext.All() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, ext.Stats().Emitted, "production stops when the consumer stops")
	assert.False(t, ext.Truncated())
}
