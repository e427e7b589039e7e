// Package config loads the ingest service configuration from an optional YAML
// file and SIRIUS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/metadata"
	"github.com/SiriusScan/go-ingest/sirius/parser/nessus"
	"github.com/SiriusScan/go-ingest/sirius/queue"
	"github.com/SiriusScan/go-ingest/sirius/snapshot"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type ValkeyConfig struct {
	Addr string `yaml:"addr"`
}

type RabbitMQConfig struct {
	URL         string `yaml:"url"`
	IngestQueue string `yaml:"ingest_queue"`
	NotifyQueue string `yaml:"notify_queue"`
	MaxInFlight int    `yaml:"max_in_flight"`
}

type MetadataConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ParserConfig struct {
	MaxFindings      int      `yaml:"max_findings"`
	SkipPlugins      []string `yaml:"skip_plugins"`
	ValidationSample int      `yaml:"validation_sample"`
}

type PipelineConfig struct {
	NormalizeWorkers int `yaml:"normalize_workers"`
}

type KPIConfig struct {
	MaxAcceptableFindings int `yaml:"max_acceptable_findings"`
	SnapshotRetention     int `yaml:"snapshot_retention"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Metadata MetadataConfig `yaml:"metadata"`
	Parser   ParserConfig   `yaml:"parser"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	KPI      KPIConfig      `yaml:"kpi"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Valkey: ValkeyConfig{Addr: store.SIRIUS_VALKEY},
		RabbitMQ: RabbitMQConfig{
			URL:         queue.SIRIUS_RABBITMQ,
			IngestQueue: "report-ingest",
			NotifyQueue: "kpi-updates",
			MaxInFlight: queue.DefaultMaxInFlight,
		},
		Metadata: MetadataConfig{
			URL:     "http://backend:8000",
			Timeout: metadata.DefaultTimeout,
		},
		Parser: ParserConfig{
			ValidationSample: nessus.DefaultSampleSize,
		},
		KPI: KPIConfig{
			MaxAcceptableFindings: kpi.DefaultMaxAcceptableFindings,
			SnapshotRetention:     snapshot.DefaultRetention,
		},
		Metrics: MetricsConfig{Addr: ":9464"},
		Tracing: TracingConfig{Insecure: true},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SIRIUS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("SIRIUS_DATABASE_DSN", &c.Database.DSN)
	str("SIRIUS_VALKEY_ADDR", &c.Valkey.Addr)
	str("SIRIUS_RABBITMQ_URL", &c.RabbitMQ.URL)
	str("SIRIUS_INGEST_QUEUE", &c.RabbitMQ.IngestQueue)
	str("SIRIUS_NOTIFY_QUEUE", &c.RabbitMQ.NotifyQueue)
	str("SIRIUS_METADATA_URL", &c.Metadata.URL)
	str("SIRIUS_METRICS_ADDR", &c.Metrics.Addr)
	str("SIRIUS_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	num("SIRIUS_MAX_FINDINGS", &c.Parser.MaxFindings)
	num("SIRIUS_VALIDATION_SAMPLE", &c.Parser.ValidationSample)
	num("SIRIUS_NORMALIZE_WORKERS", &c.Pipeline.NormalizeWorkers)
	num("SIRIUS_MAX_ACCEPTABLE_FINDINGS", &c.KPI.MaxAcceptableFindings)
	num("SIRIUS_SNAPSHOT_RETENTION", &c.KPI.SnapshotRetention)

	if v, ok := lookup("SIRIUS_METADATA_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SIRIUS_METADATA_TIMEOUT: %w", err))
		} else {
			c.Metadata.Timeout = d
		}
	}

	// "none" disables the deny-list; unset keeps the defaults.
	if v, ok := lookup("SIRIUS_SKIP_PLUGINS"); ok && v != "" {
		if strings.EqualFold(strings.TrimSpace(v), "none") {
			c.Parser.SkipPlugins = []string{}
		} else {
			c.Parser.SkipPlugins = splitList(v)
		}
	}

	return errors.Join(errs...)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Parser.MaxFindings < 0 {
		errs = append(errs, errors.New("parser.max_findings must be >= 0"))
	}
	if c.Parser.ValidationSample < 0 {
		errs = append(errs, errors.New("parser.validation_sample must be >= 0"))
	}
	if c.Pipeline.NormalizeWorkers < 0 {
		errs = append(errs, errors.New("pipeline.normalize_workers must be >= 0"))
	}
	if c.KPI.MaxAcceptableFindings <= 0 {
		errs = append(errs, errors.New("kpi.max_acceptable_findings must be > 0"))
	}
	if c.Metadata.Timeout <= 0 {
		errs = append(errs, errors.New("metadata.timeout must be > 0"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NessusOptions returns the parser settings as nessus options.
func (c *Config) NessusOptions() nessus.Options {
	return nessus.Options{
		MaxFindings: c.Parser.MaxFindings,
		SkipPlugins: c.Parser.SkipPlugins,
		SampleSize:  c.Parser.ValidationSample,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
