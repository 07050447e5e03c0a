package bandwidth

import "github.com/taniwha3/netwatch/internal/models"

// minMediumStreak/minHighStreak are the clean-cycle counts
// (n) required for each confidence tier, per spec.md §4.4.
const (
	minMediumStreak = 2
	minHighStreak   = 3
)

// Evaluate assigns a Confidence to a SampleDelta given the number of
// consecutive clean (no-anomaly) cycles observed for this interface
// before the current one, per the table in spec.md §4.4. n does not
// include the current cycle.
func Evaluate(delta models.SampleDelta, n int) models.Confidence {
	switch delta.Anomaly {
	case models.AnomalyCounterReset, models.AnomalyStale:
		return models.ConfidenceNone
	case models.AnomalyTimeJump:
		return models.ConfidenceLow
	}

	if delta.ElapsedSeconds <= 1.0 || n < minMediumStreak {
		return models.ConfidenceLow
	}
	if delta.ElapsedSeconds < 3.0 {
		return models.ConfidenceMedium
	}
	if n < minHighStreak {
		return models.ConfidenceMedium
	}
	return models.ConfidenceHigh
}

// nextStreak updates the clean-cycle counter given the anomaly observed
// this cycle: any anomaly resets it to zero, otherwise it grows by one.
func nextStreak(current int, anomaly models.Anomaly) int {
	if anomaly != models.AnomalyNone {
		return 0
	}
	return current + 1
}
