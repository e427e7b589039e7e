package nessus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/parser"
)

// ScanInformationPlugin is the plugin whose free-text output carries scan metadata.
const ScanInformationPlugin = "Nessus Scan Information"

// DefaultSkipPlugins are informational plugins that carry no security signal.
var DefaultSkipPlugins = []string{"19506", "10287", "11936"}

var (
	scanDurationPattern = regexp.MustCompile(`Scan duration : (\d+) sec`)
	scannerIPPattern    = regexp.MustCompile(`Scanner IP : ([\d.]+)`)

	errMalformedItem = errors.New("ReportItem has neither pluginID nor pluginName")
)

// Raw finding keys emitted only by the Nessus extractor.
const (
	KeyHostFQDN            = "host_fqdn"
	KeyMACAddress          = "mac_address"
	KeyHostOS              = "host_os"
	KeyScanDuration        = "scan_duration"
	KeyScannerIP           = "scanner_ip"
	KeyPluginID            = "plugin_id"
	KeyPluginFamily        = "plugin_family"
	KeyMetasploitAvailable = "metasploit_available"
	KeyMetasploitName      = "metasploit_name"
	KeyDetails             = "details"
	KeySolution            = "solution"
	KeyPort                = "port"
	KeyProtocol            = "protocol"
	KeyService             = "service"
	KeyCVE                 = "cve"
)

var hostTags = map[string]string{
	"host-fqdn":        KeyHostFQDN,
	"host-ip":          sirius.KeyIPSource,
	"mac-address":      KeyMACAddress,
	"operating-system": KeyHostOS,
	"HOST_START":       sirius.KeyEventTime,
}

// Extractor walks a validated report and yields raw findings.
type Extractor struct {
	// MaxFindings caps the number of emitted findings; zero means unlimited.
	MaxFindings int
	SkipPlugins map[string]struct{}
	Logger      *slog.Logger
}

// NewExtractor creates an Extractor. A nil skipPlugins uses DefaultSkipPlugins.
func NewExtractor(maxFindings int, skipPlugins []string, logger *slog.Logger) *Extractor {
	if skipPlugins == nil {
		skipPlugins = DefaultSkipPlugins
	}
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]struct{}, len(skipPlugins))
	for _, id := range skipPlugins {
		skip[strings.TrimSpace(id)] = struct{}{}
	}
	return &Extractor{
		MaxFindings: maxFindings,
		SkipPlugins: skip,
		Logger:      logger.With("component", "nessus-extractor"),
	}
}

// Extract returns a single-pass sequence over the report's findings.
func (x *Extractor) Extract(ctx context.Context, report *Report) *parser.Extraction {
	return parser.NewExtraction(func(yield func(sirius.RawFinding) bool, stats *parser.ExtractionStats) {
		for _, host := range report.Body.Hosts {
			identity := hostIdentity(host)
			scan := scanInfo(host)

			for i := range host.Items {
				if ctx.Err() != nil {
					return
				}
				item := &host.Items[i]

				if _, skip := x.SkipPlugins[strings.TrimSpace(item.PluginID)]; skip {
					stats.Filtered++
					continue
				}

				if x.MaxFindings > 0 && stats.Emitted >= x.MaxFindings {
					stats.Truncated = true
					x.Logger.Warn("Reached maximum findings limit", "max_findings", x.MaxFindings)
					return
				}

				raw, err := x.buildFinding(item, identity, scan)
				if err != nil {
					stats.Skipped++
					x.Logger.Error("Error creating finding", "host", host.Name, "index", i, "error", err)
					continue
				}

				stats.Emitted++
				if !yield(raw) {
					return
				}
			}
		}
	})
}

// hostIdentity reads attributes first, then lets HostProperties tags override.
func hostIdentity(host ReportHost) sirius.RawFinding {
	identity := sirius.RawFinding{}
	if name := strings.TrimSpace(host.Name); name != "" {
		if _, err := netip.ParseAddr(name); err == nil {
			identity[sirius.KeyIPSource] = name
		} else {
			identity[KeyHostFQDN] = name
		}
	}
	for _, tag := range host.Properties {
		key, ok := hostTags[tag.Name]
		if !ok {
			continue
		}
		if value := strings.TrimSpace(tag.Value); value != "" {
			identity[key] = value
		}
	}
	return identity
}

// scanInfo recovers scan duration and scanner IP from the scan information
// plugin output, when the host has one.
func scanInfo(host ReportHost) sirius.RawFinding {
	info := sirius.RawFinding{}
	for _, item := range host.Items {
		if item.PluginName != ScanInformationPlugin {
			continue
		}
		if m := scanDurationPattern.FindStringSubmatch(item.PluginOutput); m != nil {
			info[KeyScanDuration] = m[1] + " seconds"
		}
		if m := scannerIPPattern.FindStringSubmatch(item.PluginOutput); m != nil {
			info[KeyScannerIP] = m[1]
		}
		break
	}
	return info
}

func (x *Extractor) buildFinding(item *ReportItem, identity, scan sirius.RawFinding) (sirius.RawFinding, error) {
	pluginID := strings.TrimSpace(item.PluginID)
	pluginName := strings.TrimSpace(item.PluginName)
	if pluginID == "" && pluginName == "" {
		return nil, errMalformedItem
	}
	if pluginName == "" {
		pluginName = "Unknown"
	}

	raw := identity.Clone()
	for k, v := range scan {
		raw[k] = v
	}

	raw[sirius.KeyVulnerabilityName] = pluginName
	raw[KeyPluginID] = pluginID
	raw[sirius.KeySeverity] = string(sirius.SeverityFromCode(item.Severity))
	setIfNotEmpty(raw, KeyPluginFamily, item.PluginFamily)

	if score, ok, err := cvssScore(item); err != nil {
		x.Logger.Warn("Invalid CVSS score", "plugin_id", pluginID, "error", err)
	} else if ok {
		raw[sirius.KeyCVSSBaseScore] = score
	}

	raw[sirius.KeyExploitable] = isTrue(item.ExploitAvailable)
	metasploit := isTrue(item.ExploitFrameworkMetasploit)
	raw[KeyMetasploitAvailable] = metasploit
	if metasploit {
		setIfNotEmpty(raw, KeyMetasploitName, item.MetasploitName)
	}

	var details []string
	if d := strings.TrimSpace(item.Description); d != "" {
		details = append(details, "Description: "+d)
	}
	if out := strings.TrimSpace(item.PluginOutput); out != "" {
		details = append(details, "Plugin Output: "+out)
	}
	if len(details) > 0 {
		raw[KeyDetails] = strings.Join(details, "\n\n")
	}
	setIfNotEmpty(raw, KeySolution, item.Solution)

	if port, err := strconv.Atoi(strings.TrimSpace(item.Port)); err == nil && port >= 0 {
		raw[KeyPort] = port
	}
	setIfNotEmpty(raw, KeyProtocol, item.Protocol)
	setIfNotEmpty(raw, KeyService, item.SvcName)

	if len(item.CVE) > 0 {
		cves := make([]string, 0, len(item.CVE))
		for _, c := range item.CVE {
			if c = strings.TrimSpace(c); c != "" {
				cves = append(cves, c)
			}
		}
		if len(cves) > 0 {
			raw[KeyCVE] = cves
		}
	}

	return raw, nil
}

// cvssScore prefers the CVSSv2 base score and falls back to CVSSv3.
func cvssScore(item *ReportItem) (float64, bool, error) {
	text := item.CVSSBaseScore
	if text == nil || strings.TrimSpace(*text) == "" {
		text = item.CVSS3BaseScore
	}
	if text == nil || strings.TrimSpace(*text) == "" {
		return 0, false, nil
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(*text), 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid CVSS score %q: %w", *text, err)
	}
	return score, true, nil
}

func isTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func setIfNotEmpty(raw sirius.RawFinding, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		raw[key] = value
	}
}
