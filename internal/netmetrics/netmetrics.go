// Package netmetrics exposes the collector's own operational metrics
// (capture throughput, drop rate, storage size, clock skew) as a
// Prometheus registry, so an operator can scrape the running process
// the same way they would any other network service.
package netmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every metric the collector publishes about itself.
type Metrics struct {
	// Bandwidth collector (C5)
	ThroughputDownloadBps *prometheus.GaugeVec
	ThroughputUploadBps   *prometheus.GaugeVec
	ThroughputConfidence  *prometheus.GaugeVec
	BandwidthCollectErrors *prometheus.CounterVec

	// Capture pipeline (C6/C8)
	PacketsCaptured  *prometheus.CounterVec
	PacketsDropped   *prometheus.GaugeVec
	CaptureQueueDepth *prometheus.GaugeVec
	CaptureBackpressureRate *prometheus.GaugeVec
	PipelineState    prometheus.Gauge

	// Protocol parser (C7)
	PacketsByAppProto *prometheus.CounterVec
	ParseErrors       prometheus.Counter

	// Persistence store (C9)
	StoreDatabaseSizeBytes prometheus.Gauge
	StoreWALSizeBytes      prometheus.Gauge
	StoreWriteErrors       *prometheus.CounterVec
	StoreWriteDuration     *prometheus.HistogramVec

	// Ambient
	ClockSkewMs prometheus.Gauge
	Degraded    *prometheus.GaugeVec
}

// New constructs a Metrics and registers every collector on reg. Callers
// typically pass prometheus.NewRegistry() rather than the global
// DefaultRegisterer, so test processes don't collide on repeated
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ThroughputDownloadBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_throughput_download_bps",
			Help: "Most recent inbound throughput estimate, in bytes per second, per interface.",
		}, []string{"interface"}),

		ThroughputUploadBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_throughput_upload_bps",
			Help: "Most recent outbound throughput estimate, in bytes per second, per interface.",
		}, []string{"interface"}),

		ThroughputConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_throughput_confidence",
			Help: "Confidence level of the most recent throughput estimate (0=none, 1=low, 2=medium, 3=high).",
		}, []string{"interface"}),

		BandwidthCollectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_bandwidth_collect_errors_total",
			Help: "Total number of per-interface errors encountered while sampling counters.",
		}, []string{"interface"}),

		PacketsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_packets_captured_total",
			Help: "Total number of captured frames decoded into packet records.",
		}, []string{"interface"}),

		PacketsDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_packets_dropped_total",
			Help: "Total number of frames dropped by the bounded per-interface queue under backpressure.",
		}, []string{"interface"}),

		CaptureQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_capture_queue_depth",
			Help: "Current number of frames buffered in the per-interface capture queue.",
		}, []string{"interface"}),

		CaptureBackpressureRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_capture_backpressure_rate",
			Help: "Fraction of frames dropped over the trailing 10s window, per interface.",
		}, []string{"interface"}),

		PipelineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_pipeline_state",
			Help: "Capture pipeline lifecycle state (0=idle, 1=running, 2=draining, 3=stopped).",
		}),

		PacketsByAppProto: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_packets_by_app_proto_total",
			Help: "Total number of packets classified per application protocol.",
		}, []string{"app_proto"}),

		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_parse_errors_total",
			Help: "Total number of frames that failed protocol decoding.",
		}),

		StoreDatabaseSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_store_database_size_bytes",
			Help: "Current size of the SQLite database file on disk.",
		}),

		StoreWALSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_store_wal_size_bytes",
			Help: "Current size of the SQLite write-ahead log file on disk.",
		}),

		StoreWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_store_write_errors_total",
			Help: "Total number of failed batched writes, by table.",
		}, []string{"table"}),

		StoreWriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netwatch_store_write_duration_seconds",
			Help:    "Duration of batched writes to the store, by table.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),

		ClockSkewMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_clock_skew_ms",
			Help: "Most recently measured offset between the local clock and an NTP reference, in milliseconds.",
		}),

		Degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_degraded",
			Help: "1 when the named component has fallen back to its overflow buffer after repeated write failures, 0 otherwise.",
		}, []string{"component"}),
	}

	reg.MustRegister(
		m.ThroughputDownloadBps,
		m.ThroughputUploadBps,
		m.ThroughputConfidence,
		m.BandwidthCollectErrors,
		m.PacketsCaptured,
		m.PacketsDropped,
		m.CaptureQueueDepth,
		m.CaptureBackpressureRate,
		m.PipelineState,
		m.PacketsByAppProto,
		m.ParseErrors,
		m.StoreDatabaseSizeBytes,
		m.StoreWALSizeBytes,
		m.StoreWriteErrors,
		m.StoreWriteDuration,
		m.ClockSkewMs,
		m.Degraded,
	)

	return m
}
