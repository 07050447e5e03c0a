// Command netwatch is the network-observability CLI: it wires the
// bandwidth collector, capture pipeline, persistence store, and
// aggregation service together behind five subcommands (status, live,
// packets, analyze, graph).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taniwha3/netwatch/internal/aggregate"
	"github.com/taniwha3/netwatch/internal/bandwidth"
	"github.com/taniwha3/netwatch/internal/capture"
	"github.com/taniwha3/netwatch/internal/classify"
	"github.com/taniwha3/netwatch/internal/config"
	"github.com/taniwha3/netwatch/internal/geoenrich"
	"github.com/taniwha3/netwatch/internal/health"
	"github.com/taniwha3/netwatch/internal/ifsource"
	"github.com/taniwha3/netwatch/internal/lockfile"
	"github.com/taniwha3/netwatch/internal/logging"
	"github.com/taniwha3/netwatch/internal/models"
	"github.com/taniwha3/netwatch/internal/netmetrics"
	"github.com/taniwha3/netwatch/internal/pipeline"
	"github.com/taniwha3/netwatch/internal/protocol"
	"github.com/taniwha3/netwatch/internal/store"
	"github.com/taniwha3/netwatch/internal/watchdog"
)

// Exit codes per spec.md §6's EX_* convention.
const (
	exitOK               = 0
	exitError            = 1
	exitUsage            = 2
	exitTempFail         = 75
	exitPermissionDenied = 77
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	sub := args[0]
	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	configPath := fs.String("config", "netwatch.yaml", "path to YAML config file")
	ifaceName := fs.String("interface", "", "interface to target (required by packets/analyze/graph)")
	measurementDuration := fs.Duration("measurement-duration", 0, "bandwidth sampling window (1-60s); 0 uses config default")
	importantOnly := fs.Bool("important-only", false, "only show interfaces scoring >= classify.ImportantThreshold")
	activeOnly := fs.Bool("active-only", false, "only show interfaces with nonzero delta this cycle")
	_ = fs.Bool("show-all", true, "show every classified interface (default)")
	period := fs.String("period", "1h", "analysis window: 30m, 1h, 6h, 24h, or a start/end ISO-8601 interval")
	protocolFilter := fs.String("protocol", "", "BPF protocol predicate for packets: tcp, udp, icmp")
	captureDuration := fs.Duration("capture", 0, "how long to run packets before exiting; 0 runs until interrupted")
	graphKind := fs.String("kind", "throughput", "graph series kind: throughput")
	bucket := fs.Duration("bucket", time.Minute, "graph bucket size")

	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "netwatch:", err)
		return exitUsage
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	filter := classify.FilterShowAll
	switch {
	case *importantOnly:
		filter = classify.FilterImportantOnly
	case *activeOnly:
		filter = classify.FilterActiveOnly
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch sub {
	case "status":
		err = runStatus(ctx, cfg, logger, filter, *measurementDuration)
	case "live":
		err = runLive(ctx, cfg, logger, filter, *measurementDuration)
	case "packets":
		err = runPackets(ctx, cfg, logger, models.InterfaceId(*ifaceName), *protocolFilter, *captureDuration)
	case "analyze":
		err = runAnalyze(ctx, cfg, models.InterfaceId(*ifaceName), *period)
	case "graph":
		err = runGraph(ctx, cfg, models.InterfaceId(*ifaceName), *period, *graphKind, *bucket)
	default:
		usage()
		return exitUsage
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "netwatch:", err)
	}
	return exitCode(err)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: netwatch <status|live|packets|analyze|graph> [flags]")
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, models.ErrPermissionDenied):
		return exitPermissionDenied
	case errors.Is(err, models.ErrCaptureBackpressure):
		return exitTempFail
	default:
		return exitError
	}
}

// runStatus prints one bandwidth snapshot (C5) and exits.
func runStatus(ctx context.Context, cfg *config.Config, logger *slog.Logger, filter classify.RelevanceFilter, duration time.Duration) error {
	collector := bandwidth.NewCollector(ifsource.New(), logger)

	d, err := resolveMeasurementDuration(cfg, duration)
	if err != nil {
		return err
	}

	snaps, errs, err := collector.Collect(ctx, d)
	if err != nil {
		return err
	}
	for _, e := range errs {
		logger.Warn("bandwidth collect error", "interface", e.InterfaceId, "error", e.Err)
	}

	printSnapshots(os.Stdout, snaps, filter)
	return nil
}

// runLive loops the bandwidth collector (C5) until the context is
// canceled, printing each cycle and exposing health/metrics endpoints
// for long-running operation.
func runLive(ctx context.Context, cfg *config.Config, logger *slog.Logger, filter classify.RelevanceFilter, duration time.Duration) error {
	lock, err := lockfile.Acquire(lockfile.GetLockPath(cfg.Storage.Path), "live")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	defer lock.Release()

	reg := prometheus.NewRegistry()
	metrics := netmetrics.New(reg)
	checker := health.NewChecker(health.DefaultThresholds())

	pinger := watchdog.NewPinger(logger)
	go pinger.Start(ctx, func() bool { return checker.GetReport().Status != health.StatusError })
	pinger.NotifyReady()
	defer pinger.NotifyStopping()

	startHealthServer(ctx, cfg, checker, logger)
	startMetricsServer(ctx, cfg, reg, logger)
	startClockSkewMonitor(ctx, cfg, logger, checker, metrics)

	collector := bandwidth.NewCollector(ifsource.New(), logger)
	d, err := resolveMeasurementDuration(cfg, duration)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		snaps, errs, err := collector.Collect(ctx, d)
		if err != nil {
			checker.UpdateCollectorStatus("bandwidth", err, 0)
			return err
		}
		metrics.RecordThroughput(snaps)
		metrics.RecordBandwidthErrors(errs)
		checker.UpdateCollectorStatus("bandwidth", nil, len(snaps))
		pinger.NotifyStatus(fmt.Sprintf("collected %d interfaces", len(snaps)))
		printSnapshots(os.Stdout, snaps, filter)
	}
}

// runPackets captures, classifies, and persists packets on one
// interface (C6+C7+C8), feeding the store and connection-tracking sink.
func runPackets(ctx context.Context, cfg *config.Config, logger *slog.Logger, ifaceID models.InterfaceId, protoFilter string, captureDuration time.Duration) error {
	if ifaceID == "" {
		return fmt.Errorf("%w: --interface is required for packets", models.ErrInterfaceNotFound)
	}

	lock, err := lockfile.Acquire(lockfile.GetLockPath(cfg.Storage.Path), "packets:"+string(ifaceID))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	defer lock.Release()

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	geo, err := geoenrich.Open(cfg.Storage.GeoIPDatabasePath)
	if err != nil {
		logger.Warn("geoip enrichment disabled", "error", err)
		geo, _ = geoenrich.Open("")
	}
	defer geo.Close()

	reg := prometheus.NewRegistry()
	metrics := netmetrics.New(reg)
	checker := health.NewChecker(health.DefaultThresholds())
	startHealthServer(ctx, cfg, checker, logger)
	startMetricsServer(ctx, cfg, reg, logger)
	startClockSkewMonitor(ctx, cfg, logger, checker, metrics)

	writer := store.NewPacketWriter(st, logger, store.DefaultBatchSize, store.DefaultBatchInterval)
	defer writer.Close()
	startMaintenance(ctx, cfg, st, metrics, checker, logger)

	pinger := watchdog.NewPinger(logger)
	go pinger.Start(ctx, func() bool { return checker.GetReport().Status != health.StatusError })
	pinger.NotifyReady()
	defer pinger.NotifyStopping()

	addrs, err := interfaceAddresses(ctx, ifaceID)
	if err != nil {
		return err
	}

	handle, err := capture.Open(ifaceID, capture.Filter{Protocol: protoFilter})
	if err != nil {
		return err
	}
	defer handle.Close()

	sink := &packetSink{writer: writer, store: st, geo: geo, metrics: metrics}
	parser := protocol.NewParser(handle.LinkType(), addrs)

	p := pipeline.New(sink, logger, pipeline.DefaultQueueCapacity)
	p.AddSource(ifaceID, handle, parser)

	runCtx := ctx
	if captureDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, captureDuration)
		defer cancel()
	}

	p.Start(runCtx, 4)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			p.Stop(pipeline.DefaultDrainDeadline)
			metrics.RecordPipelineState(p)
			metrics.RecordPacketWriter(writer)
			checker.UpdateStoreWriterStatus(writer.Degraded(), int64(writer.BufferedCount()), nil)
			if _, exceeded := p.BackpressureRate(ifaceID); exceeded {
				return models.ErrCaptureBackpressure
			}
			return nil
		case <-ticker.C:
			metrics.RecordPipelineState(p)
			metrics.RecordPacketWriter(writer)
			checker.UpdateStoreWriterStatus(writer.Degraded(), int64(writer.BufferedCount()), nil)
			rate, exceeded := p.BackpressureRate(ifaceID)
			checker.UpdatePipelineStatus(string(ifaceID), p.State() == pipeline.StateRunning, rate, exceeded)
		}
	}
}

// runAnalyze runs the range-scan aggregation queries (C10) for one
// interface and prints a human-readable summary.
func runAnalyze(ctx context.Context, cfg *config.Config, ifaceID models.InterfaceId, period string) error {
	if ifaceID == "" {
		return fmt.Errorf("%w: --interface is required for analyze", models.ErrInterfaceNotFound)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	readDB, err := store.OpenReadPool(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer readDB.Close()

	start, end, err := parsePeriod(period)
	if err != nil {
		return err
	}

	svc := aggregate.New(readDB)
	summary, err := svc.TrafficSummary(ctx, ifaceID, start, end)
	if err != nil {
		return err
	}

	fmt.Printf("interface: %s (%s .. %s)\n", summary.InterfaceId,
		summary.Start.Format(time.RFC3339), summary.End.Format(time.RFC3339))
	fmt.Printf("bytes in=%d out=%d  packets in=%d out=%d  connections=%d\n",
		summary.TotalBytesIn, summary.TotalBytesOut, summary.TotalPacketsIn, summary.TotalPacketsOut, summary.ConnectionCount)
	for _, p := range summary.ByAppProto {
		fmt.Printf("  %-8s bytes=%d packets=%d\n", p.AppProto, p.Bytes, p.Packets)
	}
	for _, c := range summary.TopConnections {
		geo := ""
		if c.SrcGeoCountry != "" || c.DstGeoCountry != "" {
			geo = fmt.Sprintf("  %s -> %s", c.SrcGeoCountry, c.DstGeoCountry)
		}
		fmt.Printf("  %s <-> %s  bytes=%d  proto=%s%s\n", c.Key.AEndpoint, c.Key.BEndpoint, c.TotalBytes, c.AppProto, geo)
	}
	return nil
}

// runGraph writes a bucketized throughput series (C10) to stdout as
// TSV; chart rasterization is left to an external renderer.
func runGraph(ctx context.Context, cfg *config.Config, ifaceID models.InterfaceId, period, kind string, bucket time.Duration) error {
	if ifaceID == "" {
		return fmt.Errorf("%w: --interface is required for graph", models.ErrInterfaceNotFound)
	}
	if kind != "throughput" {
		return fmt.Errorf("unsupported graph kind %q", kind)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	readDB, err := store.OpenReadPool(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer readDB.Close()

	start, end, err := parsePeriod(period)
	if err != nil {
		return err
	}

	svc := aggregate.New(readDB)
	series, err := svc.ThroughputSeries(ctx, ifaceID, start, end, bucket)
	if err != nil {
		return err
	}

	fmt.Println("bucket_start\tavg_download_bps\tavg_upload_bps\tmin_confidence")
	for _, b := range series {
		fmt.Printf("%s\t%.2f\t%.2f\t%s\n", b.BucketStart.Format(time.RFC3339), b.AvgDownloadBps, b.AvgUploadBps, b.MinConfidence)
	}
	return nil
}

func resolveMeasurementDuration(cfg *config.Config, flagValue time.Duration) (time.Duration, error) {
	if flagValue > 0 {
		return flagValue, nil
	}
	return cfg.Bandwidth.MeasurementDuration()
}

func printSnapshots(w *os.File, snaps []models.ThroughputSnapshot, filter classify.RelevanceFilter) {
	for _, s := range snaps {
		rec := classify.Classify(string(s.InterfaceId), nil, false)
		active := s.DownloadBps > 0 || s.UploadBps > 0
		if !classify.Passes(filter, rec, active) {
			continue
		}
		fmt.Fprintf(w, "%-12s down=%12.0fbps up=%12.0fbps confidence=%-6s\n",
			s.InterfaceId, s.DownloadBps, s.UploadBps, s.Confidence)
	}
}

// interfaceAddresses looks up the current address set for id from the
// platform interface source, so protocol.NewParser can derive packet
// direction.
func interfaceAddresses(ctx context.Context, id models.InterfaceId) ([]string, error) {
	samples, err := ifsource.New().SampleAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		if models.InterfaceId(s.Name) == id {
			return s.Addresses, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrInterfaceNotFound, id)
}

// parsePeriod resolves the --period flag: one of the named shortcuts,
// or a "start/end" pair of RFC3339 timestamps.
func parsePeriod(period string) (start, end time.Time, err error) {
	end = time.Now()
	switch period {
	case "30m":
		return end.Add(-30 * time.Minute), end, nil
	case "1h":
		return end.Add(-time.Hour), end, nil
	case "6h":
		return end.Add(-6 * time.Hour), end, nil
	case "24h":
		return end.Add(-24 * time.Hour), end, nil
	}

	if parts := strings.SplitN(period, "/", 2); len(parts) == 2 {
		s, errS := time.Parse(time.RFC3339, parts[0])
		e, errE := time.Parse(time.RFC3339, parts[1])
		if errS == nil && errE == nil {
			return s, e, nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("invalid --period %q: expected 30m|1h|6h|24h or start/end ISO-8601 interval", period)
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := logging.Level(cfg.Level)
	if env := os.Getenv("NETWATCH_LOG"); env != "" {
		level = logging.Level(strings.ToLower(env))
	}
	format := logging.Format(cfg.Format)
	return logging.New(logging.Config{Level: level, Format: format})
}
