package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	yamlContent := `
device:
  id: test-device-001

storage:
  path: /tmp/test.db

capture:
  interfaces:
    - name: eth0
      protocol: tcp
      port: 443
    - name: wlan0
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Device.ID != "test-device-001" {
		t.Errorf("Expected device ID test-device-001, got %s", cfg.Device.ID)
	}
	if cfg.Storage.Path != "/tmp/test.db" {
		t.Errorf("Expected storage path /tmp/test.db, got %s", cfg.Storage.Path)
	}
	if len(cfg.Capture.Interfaces) != 2 {
		t.Fatalf("Expected 2 interfaces, got %d", len(cfg.Capture.Interfaces))
	}
	if cfg.Capture.Interfaces[0].Protocol != "tcp" || cfg.Capture.Interfaces[0].Port != 443 {
		t.Errorf("unexpected first interface filter: %+v", cfg.Capture.Interfaces[0])
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: Config{
				Device:  DeviceConfig{ID: "device-001"},
				Storage: StorageConfig{Path: "/tmp/test.db"},
			},
			expectError: false,
		},
		{
			name: "missing device ID",
			config: Config{
				Device:  DeviceConfig{ID: ""},
				Storage: StorageConfig{Path: "/tmp/test.db"},
			},
			expectError: true,
			errorMsg:    "device.id is required",
		},
		{
			name: "missing storage path",
			config: Config{
				Device:  DeviceConfig{ID: "device-001"},
				Storage: StorageConfig{Path: ""},
			},
			expectError: true,
			errorMsg:    "storage.path is required",
		},
		{
			name: "metrics enabled but no address",
			config: Config{
				Device:  DeviceConfig{ID: "device-001"},
				Storage: StorageConfig{Path: "/tmp/test.db"},
				Metrics: MetricsConfig{Enabled: true},
			},
			expectError: true,
			errorMsg:    "metrics.address is required",
		},
		{
			name: "interface missing name",
			config: Config{
				Device:  DeviceConfig{ID: "device-001"},
				Storage: StorageConfig{Path: "/tmp/test.db"},
				Capture: CaptureConfig{Interfaces: []InterfaceConfig{{Protocol: "tcp"}}},
			},
			expectError: true,
			errorMsg:    "name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestWALCheckpointInterval(t *testing.T) {
	tests := []struct {
		name        string
		config      StorageConfig
		expected    time.Duration
		expectError bool
	}{
		{name: "configured interval", config: StorageConfig{WALCheckpointIntervalStr: "30m"}, expected: 30 * time.Minute},
		{name: "default when empty", config: StorageConfig{}, expected: 1 * time.Hour},
		{name: "invalid string", config: StorageConfig{WALCheckpointIntervalStr: "invalid"}, expectError: true},
		{name: "negative", config: StorageConfig{WALCheckpointIntervalStr: "-1s"}, expectError: true},
		{name: "zero", config: StorageConfig{WALCheckpointIntervalStr: "0s"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.config.WALCheckpointInterval()
			if tt.expectError {
				if err == nil {
					t.Error("Expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
			ticker := time.NewTicker(result)
			ticker.Stop()
		})
	}
}

func TestWALCheckpointSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		sizeMB   int
		expected int64
	}{
		{name: "configured size", sizeMB: 128, expected: 128 * 1024 * 1024},
		{name: "default when zero", sizeMB: 0, expected: 64 * 1024 * 1024},
		{name: "default when negative", sizeMB: -1, expected: 64 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := StorageConfig{WALCheckpointSizeMB: tt.sizeMB}
			if got := cfg.WALCheckpointSizeBytes(); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestRetentionDefaults(t *testing.T) {
	var s StorageConfig

	if d, err := s.PacketRetention(); err != nil || d != 24*time.Hour {
		t.Errorf("PacketRetention default = %v, %v; want 24h, nil", d, err)
	}
	if d, err := s.ThroughputRetention(); err != nil || d != 90*24*time.Hour {
		t.Errorf("ThroughputRetention default = %v, %v; want 2160h, nil", d, err)
	}
	if d, err := s.ConnectionRetention(); err != nil || d != 30*24*time.Hour {
		t.Errorf("ConnectionRetention default = %v, %v; want 720h, nil", d, err)
	}
}

func TestRetentionInvalid(t *testing.T) {
	s := StorageConfig{PacketRetentionStr: "not-a-duration"}
	if _, err := s.PacketRetention(); err == nil {
		t.Error("expected error for invalid packet_retention")
	}

	s = StorageConfig{ThroughputRetentionStr: "-1h"}
	if _, err := s.ThroughputRetention(); err == nil {
		t.Error("expected error for negative throughput_retention")
	}
}

func TestBandwidthMeasurementDuration(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		expected    time.Duration
		expectError bool
	}{
		{name: "default", raw: "", expected: 3 * time.Second},
		{name: "configured", raw: "5s", expected: 5 * time.Second},
		{name: "zero", raw: "0s", expectError: true},
		{name: "invalid", raw: "nope", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BandwidthConfig{MeasurementDurationStr: tt.raw}
			got, err := b.MeasurementDuration()
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClockSkewWarnThreshold(t *testing.T) {
	var m MonitoringConfig
	if got := m.ClockSkewWarnThreshold(); got != 2000*time.Millisecond {
		t.Errorf("default threshold = %v, want 2000ms", got)
	}

	m = MonitoringConfig{ClockSkewWarnThresholdMs: 500}
	if got := m.ClockSkewWarnThreshold(); got != 500*time.Millisecond {
		t.Errorf("configured threshold = %v, want 500ms", got)
	}
}

func TestLoadConfigWithAllFields(t *testing.T) {
	yamlContent := `
device:
  id: test-device-001

storage:
  path: /tmp/test.db
  wal_checkpoint_interval: 30m
  wal_checkpoint_size_mb: 128
  packet_retention: 12h
  geoip_database_path: /var/lib/netwatch/GeoLite2-Country.mmdb

capture:
  interfaces:
    - name: eth0

bandwidth:
  measurement_duration: 5s

monitoring:
  ntp_server: pool.ntp.org
  clock_skew_check_interval: 5m
  clock_skew_warn_threshold_ms: 3000
  health_address: ":9100"

logging:
  level: debug
  format: json

metrics:
  enabled: true
  address: ":9090"
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Storage.WALCheckpointSizeMB != 128 {
		t.Errorf("Expected WAL size 128, got %d", cfg.Storage.WALCheckpointSizeMB)
	}
	if interval, err := cfg.Storage.WALCheckpointInterval(); err != nil || interval != 30*time.Minute {
		t.Errorf("Expected parsed interval 30m, got %v, %v", interval, err)
	}
	if cfg.Storage.GeoIPDatabasePath == "" {
		t.Error("Expected GeoIP database path to be set")
	}
	if d, err := cfg.Bandwidth.MeasurementDuration(); err != nil || d != 5*time.Second {
		t.Errorf("Expected measurement duration 5s, got %v, %v", d, err)
	}
	if cfg.Monitoring.NTPServer != "pool.ntp.org" {
		t.Errorf("Expected ntp_server pool.ntp.org, got %s", cfg.Monitoring.NTPServer)
	}
	if cfg.Monitoring.ClockSkewWarnThresholdMs != 3000 {
		t.Errorf("Expected clock skew threshold 3000ms, got %d", cfg.Monitoring.ClockSkewWarnThresholdMs)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9090" {
		t.Errorf("Expected metrics enabled on :9090, got %+v", cfg.Metrics)
	}
}

func TestInvalidTimingValuesFailValidation(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name        string
		yamlContent string
		errorMsg    string
	}{
		{
			name: "negative WAL checkpoint interval",
			yamlContent: `
device:
  id: test-device
storage:
  path: /tmp/test.db
  wal_checkpoint_interval: -1h
`,
			errorMsg: "wal_checkpoint_interval must be positive",
		},
		{
			name: "invalid measurement duration",
			yamlContent: `
device:
  id: test-device
storage:
  path: /tmp/test.db
bandwidth:
  measurement_duration: not-a-duration
`,
			errorMsg: "invalid bandwidth.measurement_duration",
		},
		{
			name: "zero packet retention",
			yamlContent: `
device:
  id: test-device
storage:
  path: /tmp/test.db
  packet_retention: 0s
`,
			errorMsg: "storage.packet_retention must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tmpDir, tt.name+".yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}
