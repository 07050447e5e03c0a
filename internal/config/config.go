// Package config loads and validates the YAML configuration file that
// drives netwatch: which interfaces to capture, where to persist
// samples, and how aggressively to retain them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Capture    CaptureConfig    `yaml:"capture"`
	Bandwidth  BandwidthConfig  `yaml:"bandwidth"`
	Storage    StorageConfig    `yaml:"storage"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DeviceConfig identifies the host running netwatch. The ID is required
// by Validate; it is not written to stored rows.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// CaptureConfig lists the interfaces to capture on and the BPF-style
// filter to apply to each. The list is loaded and checked by Validate;
// the packets subcommand takes its interface and filter from its own
// command-line flags and does not read this list.
type CaptureConfig struct {
	Interfaces []InterfaceConfig `yaml:"interfaces"`
}

// InterfaceConfig names one interface and its capture filter.
type InterfaceConfig struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"` // BPF protocol predicate: tcp, udp, icmp; empty means any
	Port     int    `yaml:"port"`     // BPF port predicate; 0 means any
}

// BandwidthConfig controls the bandwidth collector's sampling cadence.
type BandwidthConfig struct {
	MeasurementDurationStr string `yaml:"measurement_duration"` // default: 3s
}

// MeasurementDuration parses the configured sampling window. It does not
// clamp the value; the collector clamps it to [1s,60s] when it is used.
// Returns the default of 3s if not configured.
func (b *BandwidthConfig) MeasurementDuration() (time.Duration, error) {
	if b.MeasurementDurationStr == "" {
		return 3 * time.Second, nil
	}
	d, err := time.ParseDuration(b.MeasurementDurationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth.measurement_duration '%s': %w", b.MeasurementDurationStr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bandwidth.measurement_duration must be positive, got %v", d)
	}
	return d, nil
}

// StorageConfig contains local SQLite storage and retention settings.
type StorageConfig struct {
	Path                     string `yaml:"path"`
	WALCheckpointIntervalStr string `yaml:"wal_checkpoint_interval"` // how often to checkpoint WAL (default: 1h)
	WALCheckpointSizeMB      int    `yaml:"wal_checkpoint_size_mb"`  // checkpoint when WAL exceeds this size (default: 64)

	PacketRetentionStr     string `yaml:"packet_retention"`     // default: 24h
	ThroughputRetentionStr string `yaml:"throughput_retention"` // default: 2160h (90d)
	ConnectionRetentionStr string `yaml:"connection_retention"` // default: 720h (30d)

	GeoIPDatabasePath string `yaml:"geoip_database_path"` // optional; omit to disable GeoIP enrichment
}

// WALCheckpointInterval parses the checkpoint interval string to
// time.Duration. Returns default of 1 hour if not configured, or an
// error if the duration string is invalid or non-positive.
func (s *StorageConfig) WALCheckpointInterval() (time.Duration, error) {
	if s.WALCheckpointIntervalStr == "" {
		return 1 * time.Hour, nil
	}
	duration, err := time.ParseDuration(s.WALCheckpointIntervalStr)
	if err != nil {
		return 0, fmt.Errorf("invalid wal_checkpoint_interval '%s': %w", s.WALCheckpointIntervalStr, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("wal_checkpoint_interval must be positive, got %v", duration)
	}
	return duration, nil
}

// WALCheckpointSizeBytes returns the checkpoint size threshold in
// bytes. Returns a default of 64 MB if not configured.
func (s *StorageConfig) WALCheckpointSizeBytes() int64 {
	if s.WALCheckpointSizeMB <= 0 {
		return 64 * 1024 * 1024
	}
	return int64(s.WALCheckpointSizeMB) * 1024 * 1024
}

// PacketRetention parses the packet retention window. Default: 24h.
func (s *StorageConfig) PacketRetention() (time.Duration, error) {
	return parseRetention(s.PacketRetentionStr, "storage.packet_retention", 24*time.Hour)
}

// ThroughputRetention parses the throughput-sample retention window.
// Default: 90 days.
func (s *StorageConfig) ThroughputRetention() (time.Duration, error) {
	return parseRetention(s.ThroughputRetentionStr, "storage.throughput_retention", 90*24*time.Hour)
}

// ConnectionRetention parses the connection-row retention window.
// Default: 30 days.
func (s *StorageConfig) ConnectionRetention() (time.Duration, error) {
	return parseRetention(s.ConnectionRetentionStr, "storage.connection_retention", 30*24*time.Hour)
}

func parseRetention(raw, field string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", field, d)
	}
	return d, nil
}

// MonitoringConfig contains clock-skew and health-check settings. The
// skew check queries an NTP server rather than an HTTP Date header,
// since this product has no remote ingest endpoint to piggyback on.
type MonitoringConfig struct {
	NTPServer                string `yaml:"ntp_server"`                   // e.g. "pool.ntp.org"; empty disables the check
	ClockSkewCheckIntervalStr string `yaml:"clock_skew_check_interval"`    // how often to check clock skew (default: 5m)
	ClockSkewWarnThresholdMs int    `yaml:"clock_skew_warn_threshold_ms"` // warn when skew exceeds this (default: 2000ms)
	HealthAddress            string `yaml:"health_address"`               // address for health endpoint server (e.g. ":9100")
}

// ClockSkewCheckInterval parses the skew check interval. Default: 5m.
func (m *MonitoringConfig) ClockSkewCheckInterval() (time.Duration, error) {
	if m.ClockSkewCheckIntervalStr == "" {
		return 5 * time.Minute, nil
	}
	d, err := time.ParseDuration(m.ClockSkewCheckIntervalStr)
	if err != nil {
		return 0, fmt.Errorf("invalid monitoring.clock_skew_check_interval '%s': %w", m.ClockSkewCheckIntervalStr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("monitoring.clock_skew_check_interval must be positive, got %v", d)
	}
	return d, nil
}

// ClockSkewWarnThreshold returns the warn threshold, defaulting to 2000ms.
func (m *MonitoringConfig) ClockSkewWarnThreshold() time.Duration {
	if m.ClockSkewWarnThresholdMs <= 0 {
		return 2000 * time.Millisecond
	}
	return time.Duration(m.ClockSkewWarnThresholdMs) * time.Millisecond
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // json, console (default: console)
}

// MetricsConfig controls the Prometheus instrumentation endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"; required when Enabled
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid, including that every
// duration field parses to a positive value so the rest of the program
// never has to guard against a zero time.NewTicker panic at runtime.
func (c *Config) Validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics is enabled")
	}

	if _, err := c.Bandwidth.MeasurementDuration(); err != nil {
		return err
	}
	if _, err := c.Storage.WALCheckpointInterval(); err != nil {
		return err
	}
	if _, err := c.Storage.PacketRetention(); err != nil {
		return err
	}
	if _, err := c.Storage.ThroughputRetention(); err != nil {
		return err
	}
	if _, err := c.Storage.ConnectionRetention(); err != nil {
		return err
	}
	if _, err := c.Monitoring.ClockSkewCheckInterval(); err != nil {
		return err
	}

	for _, iface := range c.Capture.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("capture.interfaces: name is required")
		}
	}

	return nil
}
