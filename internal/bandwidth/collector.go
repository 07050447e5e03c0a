package bandwidth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/taniwha3/netwatch/internal/ifsource"
	"github.com/taniwha3/netwatch/internal/models"
)

// shortMeasurementDuration is the upper bound of the window spec.md
// §9 warns about: a duration at or below it never yields High
// confidence, because Evaluate requires at least 3s elapsed for High.
const shortMeasurementDuration = 2 * time.Second

const (
	minMeasurementDuration = 1 * time.Second
	maxMeasurementDuration = 60 * time.Second
)

// interfaceState is what the collector remembers about one interface
// between calls to Collect.
type interfaceState struct {
	last        models.CounterSample
	cleanStreak int
}

// PerInterfaceError records that sampling or diffing failed for one
// interface without aborting the rest of the batch (spec.md §4.5 step 5).
type PerInterfaceError struct {
	InterfaceId models.InterfaceId
	Err         error
}

func (e PerInterfaceError) Error() string {
	return fmt.Sprintf("interface %s: %v", e.InterfaceId, e.Err)
}

// Collector is the bandwidth measurement engine (C5). It owns the
// per-interface baseline state and is sequential and exclusive per
// instance: Collect must not be called concurrently on the same
// Collector (spec.md §4.5 "Concurrency").
type Collector struct {
	source ifsource.Source
	logger *slog.Logger

	mu                     sync.Mutex
	state                  map[models.InterfaceId]*interfaceState
	durationWarningLogged  bool
}

// NewCollector builds a Collector around the given interface source. A
// nil source uses the platform-default ifsource.New(); a nil logger
// discards warnings.
func NewCollector(source ifsource.Source, logger *slog.Logger) *Collector {
	if source == nil {
		source = ifsource.New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{
		source: source,
		logger: logger,
		state:  make(map[models.InterfaceId]*interfaceState),
	}
}

// clampDuration enforces the [1s, 60s] bound from spec.md §4.5 step 1.
func clampDuration(d time.Duration) time.Duration {
	if d < minMeasurementDuration {
		return minMeasurementDuration
	}
	if d > maxMeasurementDuration {
		return maxMeasurementDuration
	}
	return d
}

// Collect implements the five-step algorithm of spec.md §4.5: if this is
// the first call (empty state), it takes a baseline sample, sleeps for
// measurementDuration, then takes a second sample and diffs against the
// baseline. On subsequent calls the previous call's second sample is
// reused as this call's baseline, so the sleep still happens but no
// extra sample is taken for interfaces already tracked.
func (c *Collector) Collect(ctx context.Context, measurementDuration time.Duration) ([]models.ThroughputSnapshot, []PerInterfaceError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := clampDuration(measurementDuration)

	if d <= shortMeasurementDuration && !c.durationWarningLogged {
		c.logger.Warn("measurement duration is below the 3s that High confidence requires; snapshots will be at most Medium",
			slog.Duration("measurement_duration", d))
		c.durationWarningLogged = true
	}

	if len(c.state) == 0 {
		baseline, err := c.source.SampleAll(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, rc := range baseline {
			c.state[rc.Counters.Id] = &interfaceState{last: rc.Counters}
		}
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	current, err := c.source.SampleAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[models.InterfaceId]bool, len(current))
	snapshots := make([]models.ThroughputSnapshot, 0, len(current))
	var errs []PerInterfaceError

	for _, rc := range current {
		id := rc.Counters.Id
		seen[id] = true

		prevState, known := c.state[id]
		if !known {
			// Appeared only in this sample: store as baseline, emit at
			// confidence None (spec.md §4.5 step 4).
			c.state[id] = &interfaceState{last: rc.Counters}
			snapshots = append(snapshots, models.ThroughputSnapshot{
				Timestamp:            rc.Counters.CapturedAt,
				InterfaceId:          id,
				BytesReceivedTotal:   rc.Counters.RxBytes,
				BytesSentTotal:       rc.Counters.TxBytes,
				PacketsReceivedTotal: rc.Counters.RxPackets,
				PacketsSentTotal:     rc.Counters.TxPackets,
				Confidence:           models.ConfidenceNone,
			})
			continue
		}

		delta := Diff(prevState.last, rc.Counters)
		confidence := Evaluate(delta, prevState.cleanStreak)
		delta.Confidence = confidence

		snapshots = append(snapshots, models.ThroughputSnapshot{
			Timestamp:            rc.Counters.CapturedAt,
			InterfaceId:          id,
			DownloadBps:          DownloadBps(delta),
			UploadBps:            UploadBps(delta),
			BytesReceivedTotal:   rc.Counters.RxBytes,
			BytesSentTotal:       rc.Counters.TxBytes,
			PacketsReceivedTotal: rc.Counters.RxPackets,
			PacketsSentTotal:     rc.Counters.TxPackets,
			Confidence:           confidence,
		})

		prevState.cleanStreak = nextStreak(prevState.cleanStreak, delta.Anomaly)
		prevState.last = rc.Counters
	}

	// Interfaces that vanished between samples are dropped from state
	// (spec.md §4.5 step 4).
	for id := range c.state {
		if !seen[id] {
			delete(c.state, id)
		}
	}

	return snapshots, errs, nil
}
