package nessus

import (
	"fmt"
	"strings"

	"github.com/SiriusScan/go-ingest/sirius/parser"
)

// DefaultSampleSize is how many leading ReportItems must carry plugin attributes.
const DefaultSampleSize = 10

// Validate checks that a decoded report has hosts, findings, and plugin
// identifiers on the first sampleSize findings.
func Validate(report *Report, sampleSize int) error {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	hosts := report.Body.Hosts
	if len(hosts) == 0 {
		return &parser.StructuralValidationError{
			Format: FormatName,
			Reason: parser.ReasonNoHosts,
			Detail: "no ReportHost elements found",
		}
	}

	items := 0
	for _, host := range hosts {
		items += len(host.Items)
	}
	if items == 0 {
		return &parser.StructuralValidationError{
			Format: FormatName,
			Reason: parser.ReasonNoFindings,
			Detail: fmt.Sprintf("%d hosts but no ReportItem elements", len(hosts)),
		}
	}

	checked := 0
	for _, host := range hosts {
		for _, item := range host.Items {
			if checked >= sampleSize {
				return nil
			}
			checked++
			if strings.TrimSpace(item.PluginID) == "" || strings.TrimSpace(item.PluginName) == "" {
				return &parser.StructuralValidationError{
					Format: FormatName,
					Reason: parser.ReasonMissingPluginAttributes,
					Detail: fmt.Sprintf("ReportItem %d on host %q lacks pluginID or pluginName", checked, host.Name),
				}
			}
		}
	}
	return nil
}
