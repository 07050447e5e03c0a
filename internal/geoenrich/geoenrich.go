// Package geoenrich resolves IP addresses to country codes using a
// local MaxMind GeoLite2-Country database. Enrichment is advisory: a
// missing database path, an unreadable file, or an address the
// database has no record for all resolve to an empty country rather
// than an error, mirroring classify's EnrichLinkState — enrichment
// must never hold up the connection-tracking path it feeds.
package geoenrich

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Lookup resolves IPs against an open GeoIP database. The zero value
// (returned by Open with an empty path) has enrichment disabled. Safe
// for concurrent use.
type Lookup struct {
	mu sync.RWMutex
	db *geoip2.Reader
}

// Open loads the GeoLite2-Country database at path. An empty path is
// not an error: it returns a Lookup with enrichment disabled, since
// config.StorageConfig.GeoIPDatabasePath is optional.
func Open(path string) (*Lookup, error) {
	if path == "" {
		return &Lookup{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &Lookup{db: db}, nil
}

// Enabled reports whether a database was successfully loaded.
func (l *Lookup) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db != nil
}

// Country returns the ISO 3166-1 alpha-2 country code for ip, or ""
// if enrichment is disabled, ip doesn't parse, or the database has no
// record for it.
func (l *Lookup) Country(ip string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := l.db.Country(parsed)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the underlying database file, if one was opened.
func (l *Lookup) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
