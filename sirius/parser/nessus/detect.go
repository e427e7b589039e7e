package nessus

import (
	"bytes"

	"github.com/SiriusScan/go-ingest/sirius/parser"
)

const (
	// MinSignatures is the number of distinct format signatures required.
	MinSignatures = 3
	// MinMarkers is the number of domain markers required.
	MinMarkers = 1
)

var signatures = [][]byte{
	[]byte("NessusClientData_v2"),
	[]byte("<Report "),
	[]byte("<ReportHost"),
	[]byte("<ReportItem"),
	[]byte("pluginID="),
	[]byte("pluginName="),
	[]byte("<HostProperties"),
	[]byte("svc_name="),
	[]byte("pluginFamily="),
}

// Markers indicating the content is a security report rather than generic XML
// that happens to reuse element names.
var markers = [][]byte{
	[]byte("<Policy"),
	[]byte("<Preferences"),
	[]byte("<ServerPreferences"),
	[]byte("<plugin_output"),
	[]byte("<policyName"),
}

// Detect scans content for Nessus signatures. It never parses the document.
func Detect(content []byte) parser.FormatVerdict {
	verdict := parser.FormatVerdict{
		Evidence: countMatches(content, signatures),
		Markers:  countMatches(content, markers),
	}
	verdict.Recognized = verdict.Evidence >= MinSignatures && verdict.Markers >= MinMarkers
	return verdict
}

func countMatches(content []byte, tokens [][]byte) int {
	n := 0
	for _, tok := range tokens {
		if bytes.Contains(content, tok) {
			n++
		}
	}
	return n
}
