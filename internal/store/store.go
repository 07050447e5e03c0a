// Package store is the persistence layer (C9): an embedded, WAL-mode
// SQLite database holding throughput samples, packet records, and
// aggregated connections. The writer owns the sole write connection;
// readers that need their own connections open a separate read-only
// pool with OpenReadPool.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/taniwha3/netwatch/internal/models"
	_ "modernc.org/sqlite"
)

// ConnectionKeyHash derives the connections.key_hash primary key from a
// ConnectionKey, so the same connection always upserts the same row
// regardless of which packet observed it first.
func ConnectionKeyHash(k models.ConnectionKey) string {
	sum := sha256.Sum256([]byte(k.AEndpoint + "|" + k.BEndpoint + "|" + k.Transport.String()))
	return hex.EncodeToString(sum[:])
}

// DefaultBatchSize and DefaultBatchInterval control how long the writer
// buffers ThroughputSnapshots/PacketRecords before flushing, per
// spec.md §4.9: "batched (default batch=100 or 1s, whichever first)".
const (
	DefaultBatchSize     = 100
	DefaultBatchInterval = 1 * time.Second
)

// Retention defaults from spec.md §4.9.
const (
	DefaultPacketRetention     = 24 * time.Hour
	DefaultThroughputRetention = 90 * 24 * time.Hour
	DefaultConnectionRetention = 30 * 24 * time.Hour
)

// Store wraps a single SQLite connection pool tuned for one-writer,
// many-reader access, following the teacher's SQLiteStorage pattern.
type Store struct {
	db *sql.DB
}

// Open creates (or reopens) the database at path, applying WAL tuning
// pragmas and running any pending schema migrations.
func Open(path string) (*Store, error) {
	if !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", models.ErrStorage, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", models.ErrStorage, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-64000",
		"PRAGMA mmap_size=268435456",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: set pragma %s: %v", models.ErrStorage, p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate schema: %w", models.ErrStorage, err)
	}

	return &Store{db: db}, nil
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS throughput_samples (
				ts INTEGER NOT NULL,
				interface_id TEXT NOT NULL,
				kind TEXT NOT NULL DEFAULT '',
				download_bps REAL NOT NULL,
				upload_bps REAL NOT NULL,
				bytes_rx_total INTEGER NOT NULL,
				bytes_tx_total INTEGER NOT NULL,
				pkts_rx_total INTEGER NOT NULL,
				pkts_tx_total INTEGER NOT NULL,
				confidence INTEGER NOT NULL,
				PRIMARY KEY (ts, interface_id)
			);
			CREATE INDEX IF NOT EXISTS idx_throughput_iface_ts ON throughput_samples(interface_id, ts);

			CREATE TABLE IF NOT EXISTS packets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				ts INTEGER NOT NULL,
				interface_id TEXT NOT NULL,
				size INTEGER NOT NULL,
				direction INTEGER NOT NULL,
				net_proto INTEGER NOT NULL,
				transport INTEGER NOT NULL,
				src_ip TEXT NOT NULL,
				dst_ip TEXT NOT NULL,
				src_port INTEGER NOT NULL,
				dst_port INTEGER NOT NULL,
				app_proto INTEGER NOT NULL,
				flags INTEGER NOT NULL,
				tls_server_name TEXT,
				ja3 TEXT,
				dns_question TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_packets_iface_ts ON packets(interface_id, ts);
			CREATE INDEX IF NOT EXISTS idx_packets_app_ts ON packets(app_proto, ts);

			CREATE TABLE IF NOT EXISTS connections (
				key_hash TEXT PRIMARY KEY,
				first_seen INTEGER NOT NULL,
				last_seen INTEGER NOT NULL,
				total_bytes INTEGER NOT NULL,
				total_packets INTEGER NOT NULL,
				src_endpoint TEXT NOT NULL,
				dst_endpoint TEXT NOT NULL,
				transport INTEGER NOT NULL,
				app_proto INTEGER NOT NULL,
				src_geo_country TEXT,
				dst_geo_country TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_connections_last_seen ON connections(last_seen);
		`,
	},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if latest := migrations[len(migrations)-1].version; current > latest {
		return fmt.Errorf("%w: database schema_version %d is newer than this binary's highest known migration %d", models.ErrMigrationMismatch, current, latest)
	}

	for _, m := range migrations {
		if current >= m.version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", m.version, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// DB exposes the underlying single-writer connection. Reserved for the
// components that actually need write access (PacketWriter, retention,
// checkpointing); analytical readers should use OpenReadPool instead so
// they don't serialize behind capture writes.
func (s *Store) DB() *sql.DB {
	return s.db
}

// OpenReadPool opens a second, read-only *sql.DB against the same
// database file, sized to CPU count rather than the writer's single
// connection, per spec.md §5: "single writer connection behind a
// mutex; many read connections (connection pool sized to CPU count)".
// Analytical queries (C10 aggregation, graph export) run against this
// pool so they never queue behind the packet/throughput writer.
func OpenReadPool(path string) (*sql.DB, error) {
	roPath := path
	if !strings.HasPrefix(roPath, "file:") {
		roPath = "file:" + roPath
	}
	sep := "?"
	if strings.Contains(roPath, "?") {
		sep = "&"
	}
	roPath += sep + "mode=ro&_pragma=busy_timeout(10000)"

	db, err := sql.Open("sqlite", roPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open read pool: %v", models.ErrStorage, err)
	}

	conns := runtime.NumCPU()
	if conns < 2 {
		conns = 2
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// WriteThroughput batches-inserts ThroughputSnapshots in a single
// transaction. Called by the batching writer once per flush.
func (s *Store) WriteThroughput(ctx context.Context, kind string, snaps []models.ThroughputSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO throughput_samples
			(ts, interface_id, kind, download_bps, upload_bps, bytes_rx_total, bytes_tx_total, pkts_rx_total, pkts_tx_total, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ts, interface_id) DO UPDATE SET
			download_bps=excluded.download_bps, upload_bps=excluded.upload_bps,
			bytes_rx_total=excluded.bytes_rx_total, bytes_tx_total=excluded.bytes_tx_total,
			pkts_rx_total=excluded.pkts_rx_total, pkts_tx_total=excluded.pkts_tx_total,
			confidence=excluded.confidence
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		_, err := stmt.ExecContext(ctx,
			snap.Timestamp.UnixMilli(), string(snap.InterfaceId), kind,
			snap.DownloadBps, snap.UploadBps,
			snap.BytesReceivedTotal, snap.BytesSentTotal,
			snap.PacketsReceivedTotal, snap.PacketsSentTotal,
			int(snap.Confidence),
		)
		if err != nil {
			return fmt.Errorf("%w: insert throughput_samples: %v", models.ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrStorage, err)
	}
	return nil
}

// WritePackets batch-inserts PacketRecords in a single transaction.
func (s *Store) WritePackets(ctx context.Context, pkts []models.PacketRecord) error {
	if len(pkts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO packets
			(ts, interface_id, size, direction, net_proto, transport, src_ip, dst_ip, src_port, dst_port, app_proto, flags, tls_server_name, ja3, dns_question)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, p := range pkts {
		_, err := stmt.ExecContext(ctx,
			p.Arrival.UnixMilli(), string(p.InterfaceId), p.SizeBytes,
			int(p.Direction), int(p.NetProto), int(p.Transport),
			p.SrcIP, p.DstIP, p.SrcPort, p.DstPort,
			int(p.AppProto), packFlags(p.Flags),
			nullableString(p.TLSServerName), nullableString(p.JA3), nullableString(p.DNSQuestion),
		)
		if err != nil {
			return fmt.Errorf("%w: insert packets: %v", models.ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrStorage, err)
	}
	return nil
}

func packFlags(f models.PacketFlags) int {
	var v int
	if f.SignatureOnly {
		v |= 1
	}
	if f.SensitivePlain {
		v |= 2
	}
	if f.HighFrequency {
		v |= 4
	}
	return v
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertConnection merges one packet's worth of traffic into the
// connections table, keyed by the hash of its ConnectionKey. srcGeo and
// dstGeo are the GeoIP country codes for each endpoint, if enrichment
// is configured; an empty string leaves a previously-recorded value in
// place rather than blanking it out on a later packet that wasn't
// enriched (e.g. the database was unreachable for that lookup).
func (s *Store) UpsertConnection(ctx context.Context, keyHash string, key models.ConnectionKey, ts time.Time, bytes uint64, appProto models.AppProto, srcGeo, dstGeo string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (key_hash, first_seen, last_seen, total_bytes, total_packets, src_endpoint, dst_endpoint, transport, app_proto, src_geo_country, dst_geo_country)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key_hash) DO UPDATE SET
			last_seen = excluded.last_seen,
			total_bytes = total_bytes + excluded.total_bytes,
			total_packets = total_packets + 1,
			app_proto = excluded.app_proto,
			src_geo_country = COALESCE(NULLIF(excluded.src_geo_country, ''), src_geo_country),
			dst_geo_country = COALESCE(NULLIF(excluded.dst_geo_country, ''), dst_geo_country)
	`, keyHash, ts.UnixMilli(), ts.UnixMilli(), bytes, key.AEndpoint, key.BEndpoint, int(key.Transport), int(appProto),
		nullableString(srcGeo), nullableString(dstGeo))
	if err != nil {
		return fmt.Errorf("%w: upsert connections: %v", models.ErrStorage, err)
	}
	return nil
}

// ApplyRetention deletes rows older than the configured retention
// windows, per spec.md §4.9.
func (s *Store) ApplyRetention(ctx context.Context, packetTTL, throughputTTL, connectionTTL time.Duration) error {
	now := time.Now()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM packets WHERE ts < ?", now.Add(-packetTTL).UnixMilli()); err != nil {
		return fmt.Errorf("%w: purge packets: %v", models.ErrStorage, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM throughput_samples WHERE ts < ?", now.Add(-throughputTTL).UnixMilli()); err != nil {
		return fmt.Errorf("%w: purge throughput_samples: %v", models.ErrStorage, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE last_seen < ?", now.Add(-connectionTTL).UnixMilli()); err != nil {
		return fmt.Errorf("%w: purge connections: %v", models.ErrStorage, err)
	}
	return nil
}

// WALSize reports the current WAL file size in bytes, mirroring the
// teacher's GetWALSize, used by health checks and the checkpoint
// routine to decide when to force a checkpoint.
func (s *Store) WALSize(dbPath string) (int64, error) {
	walPath := normalizeDBPath(dbPath) + "-wal"
	info, err := os.Stat(walPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat WAL file: %w", err)
	}
	return info.Size(), nil
}

func normalizeDBPath(dbPath string) string {
	path := dbPath
	if strings.HasPrefix(path, "file:") {
		path = strings.TrimPrefix(path, "file:")
		if idx := strings.Index(path, "?"); idx != -1 {
			path = path[:idx]
		}
		if strings.HasPrefix(path, "///") {
			path = path[2:]
		}
	}
	return path
}

// Checkpoint truncates the WAL into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("%w: checkpoint: %v", models.ErrStorage, err)
	}
	return nil
}
