package parser

import (
	"errors"
	"fmt"
)

// UnrecognizedFormatError is returned when the format detector does not find
// enough evidence that the content belongs to a supported report family.
type UnrecognizedFormatError struct {
	Format   string
	Evidence int
	Markers  int
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("content does not appear to be a valid %s report (signatures=%d, markers=%d)",
		e.Format, e.Evidence, e.Markers)
}

// MalformedDocumentError is returned when the content could not be decoded at all.
type MalformedDocumentError struct {
	Format string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("invalid XML format in %s report: %v", e.Format, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// StructuralReason names the structural expectation a document violated.
type StructuralReason string

const (
	ReasonNoHosts                 StructuralReason = "no_hosts"
	ReasonNoFindings              StructuralReason = "no_findings"
	ReasonMissingPluginAttributes StructuralReason = "missing_plugin_attributes"
)

// StructuralValidationError is returned when a well-formed document lacks the
// minimum shape required by an extractor.
type StructuralValidationError struct {
	Format string
	Reason StructuralReason
	Detail string
}

func (e *StructuralValidationError) Error() string {
	msg := fmt.Sprintf("file does not have valid %s report structure: %s", e.Format, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// UnsupportedToolError is returned before any parsing when no parser is
// registered for the declared tool.
type UnsupportedToolError struct {
	ToolType string
	ToolName string
}

func (e *UnsupportedToolError) Error() string {
	if e.ToolName != "" && isVulnerabilityScanner(e.ToolType) {
		return fmt.Sprintf("vulnerability scanner '%s' is not supported yet. Currently supported: Nessus", e.ToolName)
	}
	return fmt.Sprintf("tool type '%s' is not supported yet. Currently supported: vulnerability_scanner (Nessus)", e.ToolType)
}

// Remediation returns user-facing guidance for a batch-scoped error. The
// second return value is false when err carries no known guidance.
func Remediation(err error) (string, bool) {
	var (
		unrecognized *UnrecognizedFormatError
		malformed    *MalformedDocumentError
		structural   *StructuralValidationError
		unsupported  *UnsupportedToolError
	)
	switch {
	case errors.As(err, &unrecognized):
		return "The uploaded file is not a valid Nessus report. Please ensure you exported the report as '.nessus' format from Tenable Nessus.", true
	case errors.As(err, &malformed):
		return "The uploaded file contains invalid XML. Please re-export the report from Nessus.", true
	case errors.As(err, &structural):
		switch structural.Reason {
		case ReasonNoHosts:
			return "The report contains no host records. Please check that the scan targeted at least one host and that the XML export completed successfully.", true
		case ReasonNoFindings:
			return "The report contains hosts but no findings. Please confirm the scan finished and that the export includes plugin results.", true
		default:
			return "The file structure is not valid for a Nessus report. Please check that the XML export completed successfully.", true
		}
	case errors.As(err, &unsupported):
		return unsupported.Error(), true
	}
	return "", false
}
