// Package monitoring checks whether the host's clock can be trusted,
// since every stored sample is timestamped off the local clock and a
// skewed clock silently corrupts the time-series the rest of netwatch
// depends on.
package monitoring

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// queryFunc is swapped out in tests so clock skew detection can be
// exercised without reaching a real NTP server.
var queryFunc = ntp.QueryWithOptions

// ClockSkewResult holds one NTP round-trip's measurement.
type ClockSkewResult struct {
	Skew       time.Duration // positive = local clock is ahead of the reference
	SkewMs     int64
	ServerTime time.Time
	LocalTime  time.Time
	RoundTrip  time.Duration
	Stratum    uint8
}

// DetectClockSkew queries server and returns how far the local clock has
// drifted from it. A zero timeout uses a 5s default.
func DetectClockSkew(server string, timeout time.Duration) (time.Duration, error) {
	result, err := DetectClockSkewDetailed(server, timeout)
	if err != nil {
		return 0, err
	}
	return result.Skew, nil
}

// DetectClockSkewDetailed is DetectClockSkew with the full measurement
// (round-trip time, stratum, reference times) for diagnostics.
func DetectClockSkewDetailed(server string, timeout time.Duration) (*ClockSkewResult, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	resp, err := queryFunc(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("ntp query to %s failed: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("ntp response from %s rejected: %w", server, err)
	}

	localTime := time.Now()
	// ClockOffset is the correction the NTP package says our clock needs
	// (add it to get the true time), so a positive offset means the
	// local clock is behind and the skew we report is its negation.
	skew := -resp.ClockOffset

	return &ClockSkewResult{
		Skew:       skew,
		SkewMs:     skew.Milliseconds(),
		ServerTime: localTime.Add(resp.ClockOffset),
		LocalTime:  localTime,
		RoundTrip:  resp.RTT,
		Stratum:    resp.Stratum,
	}, nil
}
