// Package aggregate implements the aggregation service (C10): stateless
// read queries over the persistence store, per spec.md §4.10.
package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taniwha3/netwatch/internal/models"
)

// Service runs read-only aggregation queries against the store's
// underlying database. It holds no state of its own between calls.
type Service struct {
	db *sql.DB
}

// New builds a Service over an already-open database handle. Using
// *sql.DB rather than *store.Store avoids a dependency from store on
// aggregate (or vice versa); both packages sit independently on top of
// the same SQLite connection.
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// TrafficSummary implements spec.md §4.10's traffic_summary query.
func (s *Service) TrafficSummary(ctx context.Context, iface models.InterfaceId, start, end time.Time) (models.TrafficSummary, error) {
	summary := models.TrafficSummary{InterfaceId: iface, Start: start, End: end}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN direction = ? THEN size ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = ? THEN size ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = ? THEN 1 ELSE 0 END), 0)
		FROM packets
		WHERE interface_id = ? AND ts >= ? AND ts <= ?
	`, int(models.DirectionIn), int(models.DirectionOut), int(models.DirectionIn), int(models.DirectionOut),
		string(iface), start.UnixMilli(), end.UnixMilli())

	if err := row.Scan(&summary.TotalBytesIn, &summary.TotalBytesOut, &summary.TotalPacketsIn, &summary.TotalPacketsOut); err != nil {
		return summary, fmt.Errorf("%w: traffic_summary totals: %v", models.ErrStorage, err)
	}

	byProto, err := s.ProtocolDistribution(ctx, iface, start, end)
	if err != nil {
		return summary, err
	}
	for proto, count := range byProto {
		summary.ByAppProto = append(summary.ByAppProto, models.ProtocolCount{AppProto: proto, Bytes: count.Bytes, Packets: count.Packets})
	}

	conns, err := s.ConnectionPatterns(ctx, iface, start, end)
	if err != nil {
		return summary, err
	}
	summary.ConnectionCount = len(conns)
	summary.TopConnections = topNByBytes(conns, 10)

	return summary, nil
}

func topNByBytes(conns []models.ConnectionPattern, n int) []models.ConnectionPattern {
	sorted := append([]models.ConnectionPattern(nil), conns...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].TotalBytes > sorted[j-1].TotalBytes; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// ThroughputSeries implements spec.md §4.10's throughput_series query,
// bucketizing averages into windows of size bucket.
func (s *Service) ThroughputSeries(ctx context.Context, iface models.InterfaceId, start, end time.Time, bucket time.Duration) ([]models.ThroughputBucket, error) {
	if bucket <= 0 {
		bucket = 60 * time.Second
	}
	bucketMs := bucket.Milliseconds()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			(ts / ?) * ? AS bucket_start,
			AVG(download_bps),
			AVG(upload_bps),
			MIN(confidence)
		FROM throughput_samples
		WHERE interface_id = ? AND ts >= ? AND ts <= ?
		GROUP BY bucket_start
		ORDER BY bucket_start ASC
	`, bucketMs, bucketMs, string(iface), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: throughput_series: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.ThroughputBucket
	for rows.Next() {
		var bucketStartMs int64
		var avgDown, avgUp float64
		var minConfidence int
		if err := rows.Scan(&bucketStartMs, &avgDown, &avgUp, &minConfidence); err != nil {
			return nil, fmt.Errorf("%w: scan throughput bucket: %v", models.ErrStorage, err)
		}
		out = append(out, models.ThroughputBucket{
			BucketStart:    time.UnixMilli(bucketStartMs),
			AvgDownloadBps: avgDown,
			AvgUploadBps:   avgUp,
			MinConfidence:  models.Confidence(minConfidence),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate throughput buckets: %v", models.ErrStorage, err)
	}
	return out, nil
}

// ProtocolDistribution implements spec.md §4.10's protocol_distribution
// query.
func (s *Service) ProtocolDistribution(ctx context.Context, iface models.InterfaceId, start, end time.Time) (map[models.AppProto]models.ProtocolCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_proto, COALESCE(SUM(size), 0), COUNT(*)
		FROM packets
		WHERE interface_id = ? AND ts >= ? AND ts <= ?
		GROUP BY app_proto
	`, string(iface), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: protocol_distribution: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[models.AppProto]models.ProtocolCount)
	for rows.Next() {
		var proto int
		var bytes, packets uint64
		if err := rows.Scan(&proto, &bytes, &packets); err != nil {
			return nil, fmt.Errorf("%w: scan protocol distribution: %v", models.ErrStorage, err)
		}
		p := models.AppProto(proto)
		out[p] = models.ProtocolCount{AppProto: p, Bytes: bytes, Packets: packets}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate protocol distribution: %v", models.ErrStorage, err)
	}
	return out, nil
}

// ConnectionPatterns implements spec.md §4.10's connection_patterns
// query.
func (s *Service) ConnectionPatterns(ctx context.Context, iface models.InterfaceId, start, end time.Time) ([]models.ConnectionPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.first_seen, c.last_seen, c.total_bytes, c.total_packets, c.src_endpoint, c.dst_endpoint, c.transport, c.app_proto,
		       COALESCE(c.src_geo_country, ''), COALESCE(c.dst_geo_country, '')
		FROM connections c
		WHERE c.last_seen >= ? AND c.last_seen <= ?
		  AND EXISTS (
		      SELECT 1 FROM packets p
		      WHERE p.interface_id = ? AND p.ts BETWEEN ? AND ?
		        AND ((p.src_ip || ':' || p.src_port) = c.src_endpoint OR (p.dst_ip || ':' || p.dst_port) = c.src_endpoint)
		  )
		ORDER BY c.total_bytes DESC
	`, start.UnixMilli(), end.UnixMilli(), string(iface), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: connection_patterns: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.ConnectionPattern
	for rows.Next() {
		var firstSeenMs, lastSeenMs int64
		var totalBytes, totalPackets uint64
		var srcEndpoint, dstEndpoint, srcGeo, dstGeo string
		var transport, appProto int
		if err := rows.Scan(&firstSeenMs, &lastSeenMs, &totalBytes, &totalPackets, &srcEndpoint, &dstEndpoint, &transport, &appProto, &srcGeo, &dstGeo); err != nil {
			return nil, fmt.Errorf("%w: scan connection pattern: %v", models.ErrStorage, err)
		}
		out = append(out, models.ConnectionPattern{
			Key:           models.ConnectionKey{AEndpoint: srcEndpoint, BEndpoint: dstEndpoint, Transport: models.Transport(transport)},
			FirstSeen:     time.UnixMilli(firstSeenMs),
			LastSeen:      time.UnixMilli(lastSeenMs),
			TotalBytes:    totalBytes,
			TotalPackets:  totalPackets,
			AppProto:      models.AppProto(appProto),
			SrcGeoCountry: srcGeo,
			DstGeoCountry: dstGeo,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate connection patterns: %v", models.ErrStorage, err)
	}
	return out, nil
}
