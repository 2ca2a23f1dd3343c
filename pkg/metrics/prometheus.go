// Package metrics provides Prometheus metrics for the index builder and the
// roster tracker.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	ResultDownloaded  = "downloaded"
	ResultNotModified = "not_modified"
	ResultFailed      = "failed"
	ResultPublished   = "published"
	ResultSkipped     = "skipped"
	ResultOK          = "ok"
)

// Manager manages all Prometheus metrics for one registry.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Build metrics
	buildDuration  prometheus.Histogram
	builds         *prometheus.CounterVec
	buildFailures  *prometheus.CounterVec
	records        prometheus.Gauge
	aggregate      prometheus.Gauge
	prefixEntries  prometheus.Gauge
	prefixEvicted  prometheus.Counter
	prefixPeakLive prometheus.Gauge
	outputBytes    prometheus.Gauge
	lastPublished  prometheus.Gauge

	// Download metrics
	downloads     *prometheus.CounterVec
	downloadBytes prometheus.Gauge

	// Tracker metrics
	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	servers      prometheus.Gauge
	clients      prometheus.Gauge
	skinChanges  prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Values recorded before Init are discarded. It must be called
// before any metric is recorded concurrently.
func Init(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(reg))...)
	customRegistry = reg
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rankindex",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.buildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "duration_seconds",
		Help:        "Wall time of a build from decode to publish",
		Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: labels,
	})
	m.builds = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "runs_total",
		Help:        "Build runs by result",
		ConstLabels: labels,
	}, []string{"result"})
	m.buildFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "failures_total",
		Help:        "Build failures by stage",
		ConstLabels: labels,
	}, []string{"stage"})
	m.records = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "records",
		Help:        "Player records in the last published index",
		ConstLabels: labels,
	})
	m.aggregate = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "aggregate_points",
		Help:        "Dataset aggregate stored in the last published header",
		ConstLabels: labels,
	})
	m.prefixEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "prefix_entries",
		Help:        "Prefix cache entries in the last published index",
		ConstLabels: labels,
	})
	m.prefixEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "prefixes_evicted_total",
		Help:        "Prefixes dropped below the popularity threshold",
		ConstLabels: labels,
	})
	m.prefixPeakLive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "prefix_peak_live",
		Help:        "Largest number of prefixes held at once during the last build",
		ConstLabels: labels,
	})
	m.outputBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "output_bytes",
		Help:        "Size of the last published index",
		ConstLabels: labels,
	})
	m.lastPublished = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "build",
		Name:        "last_published_unix",
		Help:        "Unix time of the last successful publish",
		ConstLabels: labels,
	})

	m.downloads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "source",
		Name:        "downloads_total",
		Help:        "Upstream fetch attempts by result",
		ConstLabels: labels,
	}, []string{"result"})
	m.downloadBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "source",
		Name:        "download_bytes",
		Help:        "Size of the last downloaded dataset",
		ConstLabels: labels,
	})

	m.polls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "tracker",
		Name:        "polls_total",
		Help:        "Roster polls by result",
		ConstLabels: labels,
	}, []string{"result"})
	m.pollDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "tracker",
		Name:        "poll_duration_seconds",
		Help:        "Duration of one roster poll including the store transaction",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})
	m.servers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "tracker",
		Name:        "servers",
		Help:        "Servers seen in the last poll",
		ConstLabels: labels,
	})
	m.clients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "tracker",
		Name:        "clients",
		Help:        "Clients seen in the last poll",
		ConstLabels: labels,
	})
	m.skinChanges = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "tracker",
		Name:        "skin_changes_total",
		Help:        "Skin history entries appended",
		ConstLabels: labels,
	})
}

// Build Metrics Functions.

// RecordBuildDuration records the duration of a build in seconds.
func RecordBuildDuration(seconds float64) {
	globalManager.buildDuration.Observe(seconds)
}

// RecordBuild counts a finished build run by result.
func RecordBuild(result string) {
	globalManager.builds.WithLabelValues(result).Inc()
}

// RecordBuildFailure counts a failed build by the stage that failed.
func RecordBuildFailure(stage string) {
	globalManager.buildFailures.WithLabelValues(stage).Inc()
}

// UpdateIndexStats sets the gauges describing a published index.
func UpdateIndexStats(records int, aggregate uint32, prefixEntries int, sizeBytes int64, publishedUnix int64) {
	globalManager.records.Set(float64(records))
	globalManager.aggregate.Set(float64(aggregate))
	globalManager.prefixEntries.Set(float64(prefixEntries))
	globalManager.outputBytes.Set(float64(sizeBytes))
	globalManager.lastPublished.Set(float64(publishedUnix))
}

// RecordPrefixPass records eviction statistics of one prefix cache pass.
func RecordPrefixPass(evicted, peakLive int) {
	globalManager.prefixEvicted.Add(float64(evicted))
	globalManager.prefixPeakLive.Set(float64(peakLive))
}

// Download Metrics Functions.

// RecordDownload counts an upstream fetch attempt by result.
func RecordDownload(result string) {
	globalManager.downloads.WithLabelValues(result).Inc()
}

// UpdateDownloadBytes sets the size of the last downloaded dataset.
func UpdateDownloadBytes(n int64) {
	globalManager.downloadBytes.Set(float64(n))
}

// Tracker Metrics Functions.

// RecordPoll counts a roster poll by result.
func RecordPoll(result string) {
	globalManager.polls.WithLabelValues(result).Inc()
}

// RecordPollDuration records the duration of a roster poll in seconds.
func RecordPollDuration(seconds float64) {
	globalManager.pollDuration.Observe(seconds)
}

// UpdateRoster sets the server and client gauges after a poll.
func UpdateRoster(servers, clients int) {
	globalManager.servers.Set(float64(servers))
	globalManager.clients.Set(float64(clients))
}

// RecordSkinChanges adds to the skin history counter.
func RecordSkinChanges(n int) {
	globalManager.skinChanges.Add(float64(n))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the registry in the text exposition format to path,
// for collection by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteTextfile, err)
	}
	return nil
}
