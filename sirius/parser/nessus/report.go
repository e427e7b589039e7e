package nessus

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"golang.org/x/net/html/charset"

	"github.com/SiriusScan/go-ingest/sirius/parser"
)

// FormatName is the report family handled by this package.
const FormatName = "Nessus v2"

// Report is the decoded NessusClientData_v2 document.
type Report struct {
	XMLName xml.Name
	Policy  *Policy    `xml:"Policy"`
	Body    ReportBody `xml:"Report"`
}

// Format implements parser.Document.
func (r *Report) Format() string {
	return FormatName
}

// Policy carries the scan policy metadata.
type Policy struct {
	Name string `xml:"policyName"`
}

// ReportBody is the <Report> element.
type ReportBody struct {
	Name  string       `xml:"name,attr"`
	Hosts []ReportHost `xml:"ReportHost"`
}

// ReportHost is one scanned host.
type ReportHost struct {
	Name       string       `xml:"name,attr"`
	Properties []Tag        `xml:"HostProperties>tag"`
	Items      []ReportItem `xml:"ReportItem"`
}

// Tag is a HostProperties name/value pair.
type Tag struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// ReportItem is one plugin result for a host.
type ReportItem struct {
	Port         string `xml:"port,attr"`
	SvcName      string `xml:"svc_name,attr"`
	Protocol     string `xml:"protocol,attr"`
	Severity     string `xml:"severity,attr"`
	PluginID     string `xml:"pluginID,attr"`
	PluginName   string `xml:"pluginName,attr"`
	PluginFamily string `xml:"pluginFamily,attr"`

	Description                string   `xml:"description"`
	Solution                   string   `xml:"solution"`
	PluginOutput               string   `xml:"plugin_output"`
	RiskFactor                 string   `xml:"risk_factor"`
	CVSSBaseScore              *string  `xml:"cvss_base_score"`
	CVSS3BaseScore             *string  `xml:"cvss3_base_score"`
	ExploitAvailable           string   `xml:"exploit_available"`
	ExploitFrameworkMetasploit string   `xml:"exploit_framework_metasploit"`
	MetasploitName             string   `xml:"metasploit_name"`
	CVE                        []string `xml:"cve"`
}

// Decode parses content as XML. Any syntax error is reported as a
// *parser.MalformedDocumentError.
func Decode(content []byte) (*Report, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charset.NewReaderLabel

	var report Report
	if err := dec.Decode(&report); err != nil {
		return nil, &parser.MalformedDocumentError{Format: FormatName, Err: err}
	}
	return &report, nil
}

func asReport(doc parser.Document) (*Report, error) {
	report, ok := doc.(*Report)
	if !ok || report == nil {
		return nil, fmt.Errorf("nessus: unexpected document type %T", doc)
	}
	return report, nil
}
