package aggregate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taniwha3/netwatch/internal/models"
	"github.com/taniwha3/netwatch/internal/store"
)

// openTestDB opens a real store.Store, so the schema under test matches
// production exactly; callers reach the underlying *sql.DB via s.DB()
// to construct a Service, since aggregate.Service doesn't depend on store.
func openTestDB(t *testing.T) (*store.Store, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "agg.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return s, func() { s.Close() }
}

func TestProtocolDistribution(t *testing.T) {
	s, cleanup := openTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	pkts := []models.PacketRecord{
		{Arrival: now, InterfaceId: "eth0", SizeBytes: 100, AppProto: models.AppProtoHTTPS, SrcIP: "a", DstIP: "b"},
		{Arrival: now, InterfaceId: "eth0", SizeBytes: 200, AppProto: models.AppProtoHTTPS, SrcIP: "a", DstIP: "b"},
		{Arrival: now, InterfaceId: "eth0", SizeBytes: 50, AppProto: models.AppProtoDNS, SrcIP: "a", DstIP: "b"},
	}
	if err := s.WritePackets(ctx, pkts); err != nil {
		t.Fatalf("WritePackets: %v", err)
	}

	svc := New(s.DB())
	dist, err := svc.ProtocolDistribution(ctx, "eth0", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ProtocolDistribution: %v", err)
	}

	if dist[models.AppProtoHTTPS].Bytes != 300 || dist[models.AppProtoHTTPS].Packets != 2 {
		t.Errorf("HTTPS entry = %+v, want bytes=300 packets=2", dist[models.AppProtoHTTPS])
	}
	if dist[models.AppProtoDNS].Bytes != 50 || dist[models.AppProtoDNS].Packets != 1 {
		t.Errorf("DNS entry = %+v, want bytes=50 packets=1", dist[models.AppProtoDNS])
	}
}

func TestThroughputSeries_Bucketing(t *testing.T) {
	s, cleanup := openTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	snaps := []models.ThroughputSnapshot{
		{Timestamp: base, InterfaceId: "eth0", DownloadBps: 100, UploadBps: 10, Confidence: models.ConfidenceHigh},
		{Timestamp: base.Add(10 * time.Second), InterfaceId: "eth0", DownloadBps: 200, UploadBps: 20, Confidence: models.ConfidenceMedium},
		{Timestamp: base.Add(70 * time.Second), InterfaceId: "eth0", DownloadBps: 300, UploadBps: 30, Confidence: models.ConfidenceLow},
	}
	if err := s.WriteThroughput(ctx, "ethernet", snaps); err != nil {
		t.Fatalf("WriteThroughput: %v", err)
	}

	svc := New(s.DB())
	buckets, err := svc.ThroughputSeries(ctx, "eth0", base.Add(-time.Minute), base.Add(2*time.Minute), 60*time.Second)
	if err != nil {
		t.Fatalf("ThroughputSeries: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets (0-60s and 60-120s), got %d", len(buckets))
	}
	if buckets[0].AvgDownloadBps != 150 {
		t.Errorf("first bucket avg download = %v, want 150", buckets[0].AvgDownloadBps)
	}
}

func TestTrafficSummary_TotalsAndDirection(t *testing.T) {
	s, cleanup := openTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	pkts := []models.PacketRecord{
		{Arrival: now, InterfaceId: "eth0", SizeBytes: 1000, Direction: models.DirectionIn, SrcIP: "a", DstIP: "b"},
		{Arrival: now, InterfaceId: "eth0", SizeBytes: 500, Direction: models.DirectionOut, SrcIP: "a", DstIP: "b"},
	}
	if err := s.WritePackets(ctx, pkts); err != nil {
		t.Fatalf("WritePackets: %v", err)
	}

	svc := New(s.DB())
	summary, err := svc.TrafficSummary(ctx, "eth0", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("TrafficSummary: %v", err)
	}
	if summary.TotalBytesIn != 1000 {
		t.Errorf("TotalBytesIn = %d, want 1000", summary.TotalBytesIn)
	}
	if summary.TotalBytesOut != 500 {
		t.Errorf("TotalBytesOut = %d, want 500", summary.TotalBytesOut)
	}
}
