// Package health tracks the operational status of netwatch's
// long-running components (bandwidth collector, capture pipeline,
// persistence store, clock-skew check) and exposes it over HTTP for
// process supervisors and operators.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the overall health status
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

// ComponentStatus represents the health of a single component
type ComponentStatus struct {
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport represents the complete health status of the system
type HealthReport struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components"`
	Uptime     float64                    `json:"uptime_seconds"`
}

// Checker is the main health monitoring service
type Checker struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	startTime  time.Time
	thresholds Thresholds
}

// Thresholds defines health status thresholds
type Thresholds struct {
	// How many records sitting in the store's overflow ring buffer
	// before the store component is considered degraded/erroring.
	WriterBacklogDegradedLimit int64 `json:"writer_backlog_degraded_limit"`
	WriterBacklogErrorLimit    int64 `json:"writer_backlog_error_limit"`

	// WAL size threshold, in bytes, above which storage is degraded.
	WALDegradedBytes int64 `json:"wal_degraded_bytes"`

	// Clock skew threshold (milliseconds)
	ClockSkewThresholdMs int64 `json:"clock_skew_threshold_ms"`
}

// DefaultThresholds returns sensible default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WriterBacklogDegradedLimit: 1000,
		WriterBacklogErrorLimit:    ringBufferNearFullLimit,
		WALDegradedBytes:           64 * 1024 * 1024,
		ClockSkewThresholdMs:       2000,
	}
}

// ringBufferNearFullLimit mirrors internal/store's 10k overflow ring
// capacity: once the backlog gets this close to full, a write is
// likely about to silently overwrite unflushed data.
const ringBufferNearFullLimit = 9000

// NewChecker creates a new health checker
func NewChecker(thresholds Thresholds) *Checker {
	return &Checker{
		components: make(map[string]ComponentStatus),
		startTime:  time.Now(),
		thresholds: thresholds,
	}
}

// UpdateComponent updates the status of a specific component
func (c *Checker) UpdateComponent(name string, status ComponentStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status.Timestamp = time.Now()
	c.components[name] = status
}

// UpdateCollectorStatus updates the health status of a named collector
// (the bandwidth collector, or one capture pipeline per interface).
func (c *Checker) UpdateCollectorStatus(collectorName string, err error, recordCount int) {
	status := ComponentStatus{
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"records_collected": recordCount,
		},
	}

	if err != nil {
		status.Status = StatusError
		status.Message = err.Error()
	} else {
		status.Status = StatusOK
		status.Message = "collecting"
	}

	c.UpdateComponent("collector."+collectorName, status)
}

// UpdateStoreWriterStatus reports the packet writer's state: degraded
// means it has fallen back to its in-memory overflow ring after
// repeated write failures, and backlog is how many records are
// currently sitting in that ring awaiting replay.
func (c *Checker) UpdateStoreWriterStatus(degraded bool, backlog int64, lastErr error) {
	status := ComponentStatus{
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"degraded": degraded,
			"backlog":  backlog,
		},
	}

	switch {
	case backlog >= c.thresholds.WriterBacklogErrorLimit:
		status.Status = StatusError
		status.Message = "write backlog near overflow ring capacity"
	case degraded || backlog >= c.thresholds.WriterBacklogDegradedLimit:
		status.Status = StatusDegraded
		status.Message = "store writer degraded, buffering to overflow ring"
		if lastErr != nil {
			status.Message = lastErr.Error()
		}
	default:
		status.Status = StatusOK
		status.Message = "writing"
	}

	c.UpdateComponent("store_writer", status)
}

// UpdateStorageStatus updates the health status of the persistence store.
func (c *Checker) UpdateStorageStatus(dbSize int64, walSize int64) {
	status := ComponentStatus{
		Status:    StatusOK,
		Message:   "storage operational",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"database_size_bytes": dbSize,
			"wal_size_bytes":      walSize,
		},
	}

	if walSize > c.thresholds.WALDegradedBytes {
		status.Status = StatusDegraded
		status.Message = "WAL size exceeds threshold"
	}

	c.UpdateComponent("storage", status)
}

// UpdateClockSkewStatus updates the health status of time synchronization
func (c *Checker) UpdateClockSkewStatus(skewMs int64, err error) {
	status := ComponentStatus{
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"skew_ms": skewMs,
		},
	}

	threshold := c.thresholds.ClockSkewThresholdMs
	if threshold == 0 {
		threshold = 2000
	}

	if err != nil {
		status.Status = StatusError
		status.Message = err.Error()
	} else if skewMs > threshold || skewMs < -threshold {
		status.Status = StatusDegraded
		status.Message = "clock skew exceeds threshold"
	} else {
		status.Status = StatusOK
		status.Message = "time synchronized"
	}

	c.UpdateComponent("time", status)
}

// UpdatePipelineStatus reports the capture pipeline's lifecycle state
// and backpressure rate for one interface.
func (c *Checker) UpdatePipelineStatus(interfaceName string, running bool, backpressureRate float64, exceeded bool) {
	status := ComponentStatus{
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"running":           running,
			"backpressure_rate": backpressureRate,
		},
	}

	switch {
	case !running:
		status.Status = StatusError
		status.Message = "pipeline not running"
	case exceeded:
		status.Status = StatusDegraded
		status.Message = "capture backpressure threshold exceeded"
	default:
		status.Status = StatusOK
		status.Message = "capturing"
	}

	c.UpdateComponent("pipeline."+interfaceName, status)
}

// GetReport generates a complete health report
func (c *Checker) GetReport() HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	components := make(map[string]ComponentStatus, len(c.components))
	for k, v := range c.components {
		components[k] = v
	}

	return HealthReport{
		Status:     c.calculateOverallStatus(components),
		Timestamp:  time.Now(),
		Components: components,
		Uptime:     time.Since(c.startTime).Seconds(),
	}
}

// calculateOverallStatus determines the overall system status from component statuses
func (c *Checker) calculateOverallStatus(components map[string]ComponentStatus) Status {
	if len(components) == 0 {
		return StatusOK
	}

	collectorErrorCount := 0
	collectorTotalCount := 0
	hasError := false
	hasDegraded := false

	for name, component := range components {
		if len(name) >= 10 && name[:10] == "collector." {
			collectorTotalCount++
			if component.Status == StatusError {
				collectorErrorCount++
			}
		}

		switch component.Status {
		case StatusError:
			hasError = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if collectorTotalCount > 0 && collectorErrorCount == collectorTotalCount {
		return StatusError
	}

	if writerStatus, ok := components["store_writer"]; ok && writerStatus.Status == StatusError {
		return StatusError
	}
	if storageStatus, ok := components["storage"]; ok && storageStatus.Status == StatusError {
		return StatusError
	}

	if hasDegraded || collectorErrorCount > 0 {
		return StatusDegraded
	}

	if hasError {
		return StatusError
	}

	return StatusOK
}

// HTTPHandler creates an HTTP handler for the health endpoint
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.GetReport()

		w.Header().Set("Content-Type", "application/json")

		switch report.Status {
		case StatusOK, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		case StatusError:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler returns a simple liveness probe (always returns 200 if process is running)
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessHandler returns a readiness probe (200 only if status is OK)
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.GetReport()

		w.Header().Set("Content-Type", "application/json")

		if report.Status == StatusOK {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
			})
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":          "not_ready",
				"message":         "system is not in OK state",
				"current_status":  string(report.Status),
			})
		}
	}
}

// StartHTTPServer starts the health check HTTP server
func (c *Checker) StartHTTPServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.HTTPHandler())
	mux.HandleFunc("/health/live", c.LivenessHandler())
	mux.HandleFunc("/health/ready", c.ReadinessHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
