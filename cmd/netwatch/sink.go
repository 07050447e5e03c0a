package main

import (
	"context"

	"github.com/taniwha3/netwatch/internal/geoenrich"
	"github.com/taniwha3/netwatch/internal/models"
	"github.com/taniwha3/netwatch/internal/netmetrics"
	"github.com/taniwha3/netwatch/internal/store"
)

// packetSink is the pipeline.Sink the packets subcommand wires in: it
// persists every decoded packet, rolls it into the connections table
// with GeoIP enrichment, and mirrors both onto the metrics registry.
// It composes three packages the pipeline itself knows nothing about,
// which is why it lives here rather than in internal/pipeline.
type packetSink struct {
	writer  *store.PacketWriter
	store   *store.Store
	geo     *geoenrich.Lookup
	metrics *netmetrics.Metrics
}

func (s *packetSink) HandlePacket(p models.PacketRecord) {
	s.metrics.RecordPacket(p.InterfaceId, p.AppProto)
	s.writer.Write(p)

	key := models.NewConnectionKey(p.SrcIP, p.SrcPort, p.DstIP, p.DstPort, p.Transport)
	hash := store.ConnectionKeyHash(key)
	srcGeo := s.geo.Country(p.SrcIP)
	dstGeo := s.geo.Country(p.DstIP)

	err := s.store.UpsertConnection(context.Background(), hash, key, p.Arrival, uint64(p.SizeBytes), p.AppProto, srcGeo, dstGeo)
	if err != nil {
		s.metrics.RecordStoreWriteError("connections")
	}
}
