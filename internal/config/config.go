// Package config defines process configuration and its loading.
//
// Conventions:
// - New returns a Config with defaults; Load layers file and env on top.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// Default upstream endpoints.
const (
	DefaultSourceURL  = "https://ddnet.org/players.msgpack"
	DefaultServersURL = "https://master1.ddnet.org/ddnet/15/servers.json"
)

// Limits enforced by Validate.
const (
	maxTopSize           = 255
	maxLiteralExtensions = 8
)

var (
	metricNameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`) //nolint:gochecknoglobals // compiled once
	labelNameRE  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)   //nolint:gochecknoglobals // compiled once
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// SourceURL is the upstream player dataset.
	SourceURL string `koanf:"source_url"`

	// CacheDir holds the downloaded dataset, its tag, and relative outputs.
	CacheDir string `koanf:"cache_dir"`

	// DataFile is the local copy of the dataset, relative to CacheDir unless absolute.
	DataFile string `koanf:"data_file"`

	// OutputFile is the published index, relative to CacheDir unless absolute.
	OutputFile string `koanf:"output_file"`

	// HTTPTimeout bounds each upstream request.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	// PopularityThreshold is the member count a prefix needs to be cached.
	PopularityThreshold uint32 `koanf:"popularity_threshold"`

	// TopSize is the length of each cached top list.
	TopSize int `koanf:"top_size"`

	// CommonPrefixes are literal tags matched at the start of sort keys.
	CommonPrefixes []string `koanf:"common_prefixes"`

	// LiteralExtensions is how many graphemes past a literal tag are also cached.
	LiteralExtensions int `koanf:"literal_extensions"`

	// MetricsTextfile, if set, receives a Prometheus text dump after each run.
	MetricsTextfile string `koanf:"metrics_textfile"`

	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsLabels are constant labels attached to every metric.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// MetricsBuckets overrides the tracker poll duration buckets, in seconds.
	MetricsBuckets []float64 `koanf:"metrics_buckets"`

	Tracker Tracker `koanf:"tracker"`
}

// Tracker configures the roster tracker.
type Tracker struct {
	ServersURL   string        `koanf:"servers_url"`
	DBPath       string        `koanf:"db_path"`
	HistoryLimit int           `koanf:"history_limit"`
	Interval     time.Duration `koanf:"interval"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		SourceURL:           DefaultSourceURL,
		CacheDir:            "cache",
		DataFile:            "players.msgpack",
		OutputFile:          "points_ranks_by_name.bin",
		HTTPTimeout:         5 * time.Minute,
		PopularityThreshold: 10_000,
		TopSize:             10,
		CommonPrefixes:      []string{"(1)", "[d]"},
		LiteralExtensions:   1,
		MetricsNamespace:    "rankindex",
		Tracker: Tracker{
			ServersURL:   DefaultServersURL,
			DBPath:       "ddtracker.db",
			HistoryLimit: 10,
			Interval:     time.Minute,
		},
	}
}

// DataPath returns the dataset path resolved against CacheDir.
func (c *Config) DataPath() string { return c.resolve(c.DataFile) }

// OutputPath returns the index path resolved against CacheDir.
func (c *Config) OutputPath() string { return c.resolve(c.OutputFile) }

// TrackerDBPath returns the tracker database path resolved against CacheDir.
func (c *Config) TrackerDBPath() string { return c.resolve(c.Tracker.DBPath) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.CacheDir, p)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.SourceURL == "":
		return fmt.Errorf("%w: source_url must not be empty", ErrInvalidConfig)
	case c.DataFile == "":
		return fmt.Errorf("%w: data_file must not be empty", ErrInvalidConfig)
	case c.OutputFile == "":
		return fmt.Errorf("%w: output_file must not be empty", ErrInvalidConfig)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("%w: http_timeout must be positive", ErrInvalidConfig)
	case c.PopularityThreshold < 1:
		return fmt.Errorf("%w: popularity_threshold must be at least 1", ErrInvalidConfig)
	case c.TopSize < 1 || c.TopSize > maxTopSize:
		return fmt.Errorf("%w: top_size must be in 1..%d, got %d", ErrInvalidConfig, maxTopSize, c.TopSize)
	case c.LiteralExtensions < 0 || c.LiteralExtensions > maxLiteralExtensions:
		return fmt.Errorf("%w: literal_extensions must be in 0..%d, got %d", ErrInvalidConfig, maxLiteralExtensions, c.LiteralExtensions)
	case c.Tracker.ServersURL == "":
		return fmt.Errorf("%w: tracker.servers_url must not be empty", ErrInvalidConfig)
	case c.Tracker.DBPath == "":
		return fmt.Errorf("%w: tracker.db_path must not be empty", ErrInvalidConfig)
	case c.Tracker.HistoryLimit < 1:
		return fmt.Errorf("%w: tracker.history_limit must be at least 1", ErrInvalidConfig)
	case c.Tracker.Interval <= 0:
		return fmt.Errorf("%w: tracker.interval must be positive", ErrInvalidConfig)
	}
	if !metricNameRE.MatchString(c.MetricsNamespace) {
		return fmt.Errorf("%w: metrics_namespace %q is not a valid metric name", ErrInvalidConfig, c.MetricsNamespace)
	}
	for name := range c.MetricsLabels {
		if !labelNameRE.MatchString(name) {
			return fmt.Errorf("%w: metrics_labels key %q is not a valid label name", ErrInvalidConfig, name)
		}
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return fmt.Errorf("%w: metrics_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	for _, p := range c.CommonPrefixes {
		if len(p) > maxTopSize {
			return fmt.Errorf("%w: common prefix %q longer than %d bytes", ErrInvalidConfig, p, maxTopSize)
		}
	}
	return nil
}
