package netmetrics

import (
	"github.com/taniwha3/netwatch/internal/bandwidth"
	"github.com/taniwha3/netwatch/internal/models"
	"github.com/taniwha3/netwatch/internal/pipeline"
	"github.com/taniwha3/netwatch/internal/store"
)

// RecordThroughput updates the per-interface throughput gauges from one
// bandwidth collector cycle's snapshots.
func (m *Metrics) RecordThroughput(snaps []models.ThroughputSnapshot) {
	for _, s := range snaps {
		iface := string(s.InterfaceId)
		m.ThroughputDownloadBps.WithLabelValues(iface).Set(s.DownloadBps)
		m.ThroughputUploadBps.WithLabelValues(iface).Set(s.UploadBps)
		m.ThroughputConfidence.WithLabelValues(iface).Set(float64(s.Confidence))
	}
}

// RecordBandwidthErrors increments the collect-error counter once per
// reported per-interface error.
func (m *Metrics) RecordBandwidthErrors(errs []bandwidth.PerInterfaceError) {
	for _, e := range errs {
		m.BandwidthCollectErrors.WithLabelValues(string(e.InterfaceId)).Inc()
	}
}

// RecordPacket increments the per-protocol packet counter and the raw
// capture counter for iface.
func (m *Metrics) RecordPacket(iface models.InterfaceId, proto models.AppProto) {
	m.PacketsCaptured.WithLabelValues(string(iface)).Inc()
	m.PacketsByAppProto.WithLabelValues(proto.String()).Inc()
}

// RecordParseError increments the decode-failure counter.
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordPipelineState mirrors a pipeline's lifecycle state, drop count,
// and queue depth for every interface it has registered.
func (m *Metrics) RecordPipelineState(p *pipeline.Pipeline) {
	m.PipelineState.Set(float64(p.State()))
	for _, iface := range p.InterfaceIds() {
		m.PacketsDropped.WithLabelValues(string(iface)).Set(float64(p.DropCount(iface)))
		m.CaptureQueueDepth.WithLabelValues(string(iface)).Set(float64(p.QueueDepth(iface)))
		rate, _ := p.BackpressureRate(iface)
		m.CaptureBackpressureRate.WithLabelValues(string(iface)).Set(rate)
	}
}

// RecordStoreSizes mirrors the database and WAL file sizes reported by
// the store's health check.
func (m *Metrics) RecordStoreSizes(databaseBytes, walBytes int64) {
	m.StoreDatabaseSizeBytes.Set(float64(databaseBytes))
	m.StoreWALSizeBytes.Set(float64(walBytes))
}

// RecordStoreWriteError increments the write-error counter for table.
func (m *Metrics) RecordStoreWriteError(table string) {
	m.StoreWriteErrors.WithLabelValues(table).Inc()
}

// RecordStoreWriteDuration observes how long a batched write to table took.
func (m *Metrics) RecordStoreWriteDuration(table string, seconds float64) {
	m.StoreWriteDuration.WithLabelValues(table).Observe(seconds)
}

// RecordClockSkew mirrors the most recent NTP-derived clock offset.
func (m *Metrics) RecordClockSkew(skewMs float64) {
	m.ClockSkewMs.Set(skewMs)
}

// RecordDegraded reports whether component has fallen back to its
// overflow ring buffer under sustained write failure.
func (m *Metrics) RecordDegraded(component string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}
	m.Degraded.WithLabelValues(component).Set(v)
}

// RecordPacketWriter mirrors a PacketWriter's degraded state.
func (m *Metrics) RecordPacketWriter(w *store.PacketWriter) {
	m.RecordDegraded("store_packets", w.Degraded())
}
