// Package ifsource implements the platform interface source (C1): it
// enumerates host network interfaces and reads their monotonic rx/tx
// byte and packet counters, the way the teacher's collector/network*.go
// reads /proc/net/dev or gopsutil's IOCounters, generalized behind one
// capability interface per spec.md §9's "polymorphic over {open, sample,
// recv, close}, realize via a tagged variant, not deep inheritance" note.
package ifsource

import (
	"context"
	"fmt"

	"github.com/taniwha3/netwatch/internal/models"
)

// RawCounters is what a platform read reports for one interface before
// classification or differencing.
type RawCounters struct {
	Name      string
	Addresses []string
	IsUp      bool
	Wifi80211 bool
	Counters  models.CounterSample
}

// Source is the capability every platform implementation realizes.
// sample_all() in spec.md §4.1.
type Source interface {
	// SampleAll returns a fresh snapshot of every readable interface.
	// All samples in a batch share the same CapturedAt instant when the
	// platform facility allows it. Missing interfaces are omitted, not
	// zero-filled. Individual interface read failures are recorded as
	// omissions, not aborted batches; only a total facility failure
	// returns an error (wrapping models.ErrPlatformUnavailable).
	SampleAll(ctx context.Context) ([]RawCounters, error)
}

// New returns the Source for the current platform.
func New() Source {
	return newPlatformSource()
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrPlatformUnavailable, err)
}
