package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taniwha3/netwatch/internal/config"
	"github.com/taniwha3/netwatch/internal/health"
	"github.com/taniwha3/netwatch/internal/monitoring"
	"github.com/taniwha3/netwatch/internal/netmetrics"
	"github.com/taniwha3/netwatch/internal/store"
)

// startHealthServer starts the health endpoint in the background when
// monitoring.health_address is configured. It stops itself when ctx
// is canceled.
func startHealthServer(ctx context.Context, cfg *config.Config, checker *health.Checker, logger *slog.Logger) {
	if cfg.Monitoring.HealthAddress == "" {
		return
	}
	go func() {
		if err := checker.StartHTTPServer(ctx, cfg.Monitoring.HealthAddress); err != nil {
			logger.Error("health server stopped", "error", err)
		}
	}()
}

// startMetricsServer starts the Prometheus /metrics endpoint in the
// background when metrics.enabled is set.
func startMetricsServer(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// startClockSkewMonitor periodically cross-checks the local clock
// against monitoring.ntp_server and mirrors the result onto both the
// health checker and the metrics registry. A blank ntp_server disables
// the check entirely, since it requires reaching an external host.
func startClockSkewMonitor(ctx context.Context, cfg *config.Config, logger *slog.Logger, checker *health.Checker, metrics *netmetrics.Metrics) {
	if cfg.Monitoring.NTPServer == "" {
		return
	}
	interval, err := cfg.Monitoring.ClockSkewCheckInterval()
	if err != nil {
		logger.Warn("invalid clock skew check interval, skipping monitor", "error", err)
		return
	}

	check := func() {
		skew, err := monitoring.DetectClockSkew(cfg.Monitoring.NTPServer, 5*time.Second)
		skewMs := skew.Milliseconds()
		checker.UpdateClockSkewStatus(skewMs, err)
		if err != nil {
			logger.Warn("clock skew check failed", "server", cfg.Monitoring.NTPServer, "error", err)
			return
		}
		metrics.RecordClockSkew(float64(skewMs))
		warn := cfg.Monitoring.ClockSkewWarnThreshold().Milliseconds()
		if skewMs > warn || skewMs < -warn {
			logger.Warn("clock skew exceeds threshold", "skew_ms", skewMs, "threshold_ms", warn)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// startMaintenance hands WAL checkpointing to the store's own routine
// and separately applies retention on the same cadence, mirroring its
// size/health reporting onto the metrics registry and health checker.
func startMaintenance(ctx context.Context, cfg *config.Config, st *store.Store, metrics *netmetrics.Metrics, checker *health.Checker, logger *slog.Logger) {
	interval, err := cfg.Storage.WALCheckpointInterval()
	if err != nil {
		logger.Warn("invalid wal_checkpoint_interval, skipping maintenance", "error", err)
		return
	}
	packetTTL, err := cfg.Storage.PacketRetention()
	if err != nil {
		logger.Warn("invalid packet_retention, skipping maintenance", "error", err)
		return
	}
	throughputTTL, err := cfg.Storage.ThroughputRetention()
	if err != nil {
		logger.Warn("invalid throughput_retention, skipping maintenance", "error", err)
		return
	}
	connectionTTL, err := cfg.Storage.ConnectionRetention()
	if err != nil {
		logger.Warn("invalid connection_retention, skipping maintenance", "error", err)
		return
	}

	st.StartCheckpointRoutine(ctx, logger, cfg.Storage.Path, interval, cfg.Storage.WALCheckpointSizeBytes())

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.ApplyRetention(ctx, packetTTL, throughputTTL, connectionTTL); err != nil {
					logger.Error("apply retention failed", "error", err)
				}

				walSize, err := st.WALSize(cfg.Storage.Path)
				if err != nil {
					logger.Warn("wal size check failed", "error", err)
					continue
				}
				dbSize := fileSize(cfg.Storage.Path)
				metrics.RecordStoreSizes(dbSize, walSize)
				checker.UpdateStorageStatus(dbSize, walSize)
			}
		}
	}()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
