package nessus

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/parser"
)

const noHostsReport = `<?xml version="1.0"?>
<NessusClientData_v2>
<Policy><policyName>Empty</policyName></Policy>
<Report name="orphaned">
  <ReportItem pluginID="1" pluginName="Orphaned Item" severity="2"/>
</Report>
</NessusClientData_v2>`

const noItemsReport = `<?xml version="1.0"?>
<NessusClientData_v2>
<Policy><policyName>Empty</policyName></Policy>
<Report name="quiet">
  <ReportHost name="10.0.0.1"><HostProperties><tag name="host-ip">10.0.0.1</tag></HostProperties></ReportHost>
</Report>
</NessusClientData_v2>`

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func extractAll(t *testing.T, x *Extractor, content []byte) ([]sirius.RawFinding, parser.ExtractionStats) {
	t.Helper()
	report, err := Decode(content)
	require.NoError(t, err)
	require.NoError(t, Validate(report, 0))
	extraction := x.Extract(context.Background(), report)
	raws := extraction.Collect()
	return raws, extraction.Stats()
}

func TestDetect(t *testing.T) {
	t.Log("\n🔍 Testing Nessus format detection...")

	verdict := Detect(loadFixture(t, "three_hosts.nessus"))
	assert.True(t, verdict.Recognized)
	assert.GreaterOrEqual(t, verdict.Evidence, MinSignatures)
	assert.GreaterOrEqual(t, verdict.Markers, MinMarkers)

	generic := `<?xml version="1.0"?><Report name="x"><ReportHost name="a"><ReportItem pluginID="1" pluginName="n"/></ReportHost></Report>`
	verdict = Detect([]byte(generic))
	assert.False(t, verdict.Recognized, "signatures without domain markers are not enough")
	assert.Zero(t, verdict.Markers)

	verdict = Detect([]byte(`<html><body><Policy>nothing</Policy></body></html>`))
	assert.False(t, verdict.Recognized)

	assert.False(t, Detect(nil).Recognized)

	t.Log("✅ Nessus format detection test passed")
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`<NessusClientData_v2><Report name="x"><ReportHost>`))
	var malformed *parser.MalformedDocumentError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, FormatName, malformed.Format)
	assert.Error(t, errors.Unwrap(err))
}

func TestValidate(t *testing.T) {
	t.Log("\n🔍 Testing structural validation...")

	report, err := Decode([]byte(noHostsReport))
	require.NoError(t, err)
	err = Validate(report, 0)
	var structural *parser.StructuralValidationError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, parser.ReasonNoHosts, structural.Reason)

	report, err = Decode([]byte(noItemsReport))
	require.NoError(t, err)
	err = Validate(report, 0)
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, parser.ReasonNoFindings, structural.Reason)

	missing := strings.Replace(string(loadFixture(t, "three_hosts.nessus")),
		`pluginName="SSH Weak Algorithms"`, ``, 1)
	report, err = Decode([]byte(missing))
	require.NoError(t, err)
	err = Validate(report, 0)
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, parser.ReasonMissingPluginAttributes, structural.Reason)

	// Items past the sample are not inspected.
	require.NoError(t, Validate(report, 2))

	t.Log("✅ Structural validation test passed")
}

func TestExtractThreeHostScenario(t *testing.T) {
	t.Log("\n🔍 Testing extraction of a three host report...")

	raws, stats := extractAll(t, NewExtractor(0, nil, nil), loadFixture(t, "three_hosts.nessus"))

	require.Len(t, raws, 10)
	assert.Equal(t, 10, stats.Emitted)
	assert.Equal(t, 1, stats.Filtered, "scan information plugin is filtered")
	assert.False(t, stats.Truncated)

	bySeverity := map[string]int{}
	hosts := map[string]struct{}{}
	for _, raw := range raws {
		sev, _ := raw.String(sirius.KeySeverity)
		bySeverity[sev]++
		ip, _ := raw.String(sirius.KeyIPSource)
		hosts[ip] = struct{}{}
	}
	assert.Equal(t, 2, bySeverity["Critical"])
	assert.Equal(t, 3, bySeverity["High"])
	assert.Equal(t, 4, bySeverity["Low"])
	assert.Equal(t, 1, bySeverity["Info"], "missing severity code defaults to Info")
	assert.Len(t, hosts, 3)

	t.Log("✅ Three host extraction test passed")
}

func TestExtractFieldMapping(t *testing.T) {
	raws, _ := extractAll(t, NewExtractor(0, nil, nil), loadFixture(t, "three_hosts.nessus"))
	byPlugin := map[string]sirius.RawFinding{}
	for _, raw := range raws {
		id, _ := raw.String(KeyPluginID)
		byPlugin[id] = raw
	}

	heartbleed := byPlugin["1001"]
	require.NotNil(t, heartbleed)
	assert.Equal(t, "OpenSSL Heartbleed", heartbleed[sirius.KeyVulnerabilityName])
	assert.Equal(t, "Critical", heartbleed[sirius.KeySeverity])
	assert.Equal(t, 10.0, heartbleed[sirius.KeyCVSSBaseScore])
	assert.Equal(t, true, heartbleed[sirius.KeyExploitable])
	assert.Equal(t, true, heartbleed[KeyMetasploitAvailable])
	assert.Equal(t, "OpenSSL Heartbeat Information Leak", heartbleed[KeyMetasploitName])
	assert.Equal(t, 443, heartbleed[KeyPort])
	assert.Equal(t, "tcp", heartbleed[KeyProtocol])
	assert.Equal(t, "www", heartbleed[KeyService])
	assert.Equal(t, []string{"CVE-2014-0160"}, heartbleed[KeyCVE])
	assert.Equal(t, "db01.corp.example", heartbleed[KeyHostFQDN])
	assert.Equal(t, "Linux Kernel 5.15", heartbleed[KeyHostOS])
	assert.Equal(t, "00:11:22:33:44:55", heartbleed[KeyMACAddress])
	assert.Equal(t, "Tue Jan  2 03:04:05 2024", heartbleed[sirius.KeyEventTime])
	assert.Contains(t, heartbleed[KeyDetails], "Description: The remote service")

	t.Log("📝 Scan information is copied onto every finding of the host")
	assert.Equal(t, "120 seconds", heartbleed[KeyScanDuration])
	assert.Equal(t, "10.0.0.5", heartbleed[KeyScannerIP])
	assert.NotContains(t, byPlugin["2001"], KeyScanDuration)

	struts := byPlugin["2001"]
	assert.Equal(t, 9.8, struts[sirius.KeyCVSSBaseScore], "CVSSv3 is used when v2 is absent")
	assert.Equal(t, false, struts[KeyMetasploitAvailable])
	assert.NotContains(t, struts, KeyMetasploitName)

	assert.NotContains(t, byPlugin["3003"], sirius.KeyCVSSBaseScore, "unparseable scores are dropped")
	assert.Equal(t, "Info", byPlugin["1004"][sirius.KeySeverity])
}

func TestExtractHostIdentityOverride(t *testing.T) {
	raws, _ := extractAll(t, NewExtractor(0, nil, nil), loadFixture(t, "three_hosts.nessus"))

	for _, raw := range raws {
		if raw[KeyPluginID] != "2002" {
			continue
		}
		assert.Equal(t, "192.168.1.20", raw[sirius.KeyIPSource], "host-ip tag sets the address")
		assert.Equal(t, "web01.corp.example", raw[KeyHostFQDN], "host-fqdn tag overrides the name attribute")
		return
	}
	t.Fatal("❌ plugin 2002 not extracted")
}

func TestExtractSkipPlugins(t *testing.T) {
	t.Log("\n🔍 Testing plugin deny-list...")

	raws, stats := extractAll(t, NewExtractor(0, []string{"1001", " 2001 "}, nil), loadFixture(t, "three_hosts.nessus"))
	assert.Len(t, raws, 9, "scan information is kept, two plugins filtered")
	assert.Equal(t, 2, stats.Filtered)
	for _, raw := range raws {
		assert.NotEqual(t, "1001", raw[KeyPluginID])
		assert.NotEqual(t, "2001", raw[KeyPluginID])
	}

	raws, stats = extractAll(t, NewExtractor(0, []string{}, nil), loadFixture(t, "three_hosts.nessus"))
	assert.Len(t, raws, 11, "an empty deny-list keeps every plugin")
	assert.Zero(t, stats.Filtered)

	t.Log("✅ Plugin deny-list test passed")
}

func TestExtractTruncation(t *testing.T) {
	raws, stats := extractAll(t, NewExtractor(4, nil, nil), loadFixture(t, "three_hosts.nessus"))
	assert.Len(t, raws, 4)
	assert.True(t, stats.Truncated)
	assert.Equal(t, 4, stats.Emitted)
}

func TestExtractMalformedItem(t *testing.T) {
	content := `<NessusClientData_v2><Policy><policyName>p</policyName></Policy><Report name="r">
<ReportHost name="10.0.0.1">
  <ReportItem pluginID="1" pluginName="Good" severity="2"/>
  <ReportItem severity="3"/>
  <ReportItem pluginID="3" severity="1"/>
</ReportHost></Report></NessusClientData_v2>`

	report, err := Decode([]byte(content))
	require.NoError(t, err)
	extraction := NewExtractor(0, nil, nil).Extract(context.Background(), report)
	raws := extraction.Collect()

	require.Len(t, raws, 2)
	assert.Equal(t, 1, extraction.Stats().Skipped)
	assert.Equal(t, "Unknown", raws[1][sirius.KeyVulnerabilityName], "missing plugin name falls back to Unknown")
}

func TestExtractionIsSinglePass(t *testing.T) {
	report, err := Decode(loadFixture(t, "three_hosts.nessus"))
	require.NoError(t, err)
	extraction := NewExtractor(0, nil, nil).Extract(context.Background(), report)

	assert.Len(t, extraction.Collect(), 10)
	assert.Empty(t, extraction.Collect(), "a drained extraction yields nothing")
}

func TestExtractStopsOnCancel(t *testing.T) {
	report, err := Decode(loadFixture(t, "three_hosts.nessus"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, NewExtractor(0, nil, nil).Extract(ctx, report).Collect())
}

func TestRegister(t *testing.T) {
	reg := parser.NewRegistry()
	Register(reg, Options{})

	p, err := reg.Select(sirius.ToolDescriptor{Name: "Tenable Nessus Pro", Type: "Vulnerability_Scanner"})
	require.NoError(t, err)
	assert.Equal(t, FormatName, p.Format())
}
