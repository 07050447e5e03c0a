// Package bandwidth implements the sample differencer (C3), confidence
// evaluator (C4), and bandwidth collector (C5): together the bandwidth
// measurement engine that turns two monotonic counter samples into a
// trustworthy throughput estimate, per spec.md §4.3–§4.5.
package bandwidth

import (
	"time"

	"github.com/taniwha3/netwatch/internal/models"
)

const (
	// maxPlausibleElapsed is the ceiling past which a sample pair is
	// considered stale rather than slow (spec.md §4.3 step 1).
	maxPlausibleElapsed = 600 * time.Second

	// maxWallDrift is the tolerance between monotonic elapsed time and
	// wall-clock elapsed time before a TimeJump anomaly is raised
	// (spec.md §4.3 step 2).
	maxWallDrift = 2 * time.Second

	// maxPlausibleBytesPerSecond is the sanity bound from spec.md §4.3
	// step 5: 100 Gb/s expressed in bytes/sec.
	maxPlausibleBytesPerSecond = 12.5e9
)

// Diff computes the delta between two consecutive CounterSamples for the
// same interface, implementing the algorithm of spec.md §4.3 exactly.
func Diff(prev, curr models.CounterSample) models.SampleDelta {
	delta := models.SampleDelta{Id: curr.Id}

	elapsed := curr.CapturedAt.Sub(prev.CapturedAt)
	if elapsed <= 0 || elapsed > maxPlausibleElapsed {
		delta.Anomaly = models.AnomalyStale
		return delta
	}
	delta.ElapsedSeconds = elapsed.Seconds()

	wallElapsed := curr.WallTime.Sub(prev.WallTime)
	wallDrift := wallElapsed - elapsed
	if wallDrift < 0 {
		wallDrift = -wallDrift
	}
	if wallDrift > maxWallDrift {
		delta.Anomaly = models.AnomalyTimeJump
		// Rate still uses the monotonic elapsed time; deltas below are
		// still computed normally (spec.md §4.3 step 2).
	}

	rxBytes, rxReset := satSub(curr.RxBytes, prev.RxBytes)
	txBytes, txReset := satSub(curr.TxBytes, prev.TxBytes)
	rxPkts, rxPktReset := satSub(curr.RxPackets, prev.RxPackets)
	txPkts, txPktReset := satSub(curr.TxPackets, prev.TxPackets)

	delta.RxByteDelta = rxBytes
	delta.TxByteDelta = txBytes
	delta.RxPacketDelta = rxPkts
	delta.TxPacketDelta = txPkts

	if rxReset || txReset || rxPktReset || txPktReset {
		// A backward transition on any counter is always treated as a
		// reset, never a wraparound: spec.md §9 is explicit that
		// today's 64-bit kernel counters don't wrap in practice, so
		// trying to distinguish reset from wrap is false precision.
		delta.Anomaly = models.AnomalyCounterReset
		return delta
	}

	downRate := float64(rxBytes) / delta.ElapsedSeconds
	upRate := float64(txBytes) / delta.ElapsedSeconds
	if downRate > maxPlausibleBytesPerSecond || upRate > maxPlausibleBytesPerSecond {
		// Implausible for a single interface; treat like a reset rather
		// than report a number nobody should trust (spec.md §4.3 step 5).
		delta.Anomaly = models.AnomalyCounterReset
		delta.RxByteDelta = 0
		delta.TxByteDelta = 0
		delta.RxPacketDelta = 0
		delta.TxPacketDelta = 0
	}

	return delta
}

// satSub returns curr-prev saturating at zero, and whether prev > curr
// (i.e. a backward/reset transition occurred).
func satSub(curr, prev uint64) (uint64, bool) {
	if curr < prev {
		return 0, true
	}
	return curr - prev, false
}

// DownloadBps/UploadBps are derived from a SampleDelta once confidence
// has been assigned; kept separate from Diff so C4 can see the delta
// before rates are computed, matching the C3→C4 ordering in spec.md's
// data-flow diagram.
func DownloadBps(d models.SampleDelta) float64 {
	if d.ElapsedSeconds <= 0 {
		return 0
	}
	return float64(d.RxByteDelta) / d.ElapsedSeconds
}

func UploadBps(d models.SampleDelta) float64 {
	if d.ElapsedSeconds <= 0 {
		return 0
	}
	return float64(d.TxByteDelta) / d.ElapsedSeconds
}

// monotonicRateBound implements invariant 1 from spec.md §8: computed
// bps must never exceed (delta/elapsed)*(1+eps). Exposed for tests.
func monotonicRateBound(byteDelta uint64, elapsedSeconds, eps float64) float64 {
	return (float64(byteDelta) / elapsedSeconds) * (1 + eps)
}
