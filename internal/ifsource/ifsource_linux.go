//go:build linux

package ifsource

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/taniwha3/netwatch/internal/models"
)

type linuxSource struct{}

func newPlatformSource() Source {
	return &linuxSource{}
}

// SampleAll reads /proc/net/dev, the way the teacher's
// NetworkCollector.collect (network_linux.go) does, but without any
// exclusion filtering — spec.md §4.1 requires C1 to sample everything
// readable; relevance-based filtering is the classifier/consumer's job
// (§4.2).
func (s *linuxSource) SampleAll(ctx context.Context) ([]RawCounters, error) {
	data, err := os.ReadFile("/proc/net/dev")
	if err != nil {
		return nil, wrapUnavailable("read /proc/net/dev", err)
	}

	now := time.Now()
	addrsByName := interfaceAddresses()

	var out []RawCounters
	for i, line := range strings.Split(string(data), "\n") {
		if i < 2 {
			continue // header lines
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}

		fields := strings.Fields(parts[1])
		if len(fields) < 16 {
			continue // malformed line for this interface; omit, don't abort
		}

		rxBytes, okA := parseUint64(fields[0])
		rxPackets, okB := parseUint64(fields[1])
		txBytes, okC := parseUint64(fields[8])
		txPackets, okD := parseUint64(fields[9])
		if !okA || !okB || !okC || !okD {
			continue // unparseable counters for this interface; omit
		}

		meta := addrsByName[name]
		out = append(out, RawCounters{
			Name:      name,
			Addresses: meta.addrs,
			IsUp:      meta.up,
			Wifi80211: isWireless(name),
			Counters: models.CounterSample{
				Id:         models.InterfaceId(name),
				RxBytes:    rxBytes,
				TxBytes:    txBytes,
				RxPackets:  rxPackets,
				TxPackets:  txPackets,
				CapturedAt: now,
				WallTime:   now,
			},
		})
	}

	seen := make(map[string]struct{}, len(out))
	for _, rc := range out {
		seen[rc.Name] = struct{}{}
	}
	for name, meta := range addrsByName {
		if _, ok := seen[name]; ok {
			continue
		}
		// Namespace-qualified entries ("<nsname>/<iface>") come only
		// from netlinkAddresses' /var/run/netns walk; /proc/net/dev
		// never reports them since it's scoped to this process's own
		// namespace. Surface them for inventory/classification with
		// zero counters rather than dropping them, since reading byte
		// counters would require holding each namespace open for every
		// sampling cycle.
		if !strings.Contains(name, "/") {
			continue
		}
		out = append(out, RawCounters{
			Name:      name,
			Addresses: meta.addrs,
			IsUp:      meta.up,
			Counters: models.CounterSample{
				Id:         models.InterfaceId(name),
				CapturedAt: now,
				WallTime:   now,
			},
		})
	}

	return out, nil
}

type ifaceMeta struct {
	addrs []string
	up    bool
}

// interfaceAddresses enriches /proc/net/dev's counters with addresses
// and up/down state from the standard net package. A vishvananda/netlink
// based enumeration (richer: carries scope, flags, and VF details) is
// available via netlinkAddresses and preferred when it succeeds; net
// package enumeration is the fallback so a missing NETLINK socket
// permission never blocks bandwidth measurement.
func interfaceAddresses() map[string]ifaceMeta {
	if m := netlinkAddresses(); m != nil {
		return m
	}

	out := make(map[string]ifaceMeta)
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		var strs []string
		for _, a := range addrs {
			strs = append(strs, a.String())
		}
		out[iface.Name] = ifaceMeta{
			addrs: strs,
			up:    iface.Flags&net.FlagUp != 0,
		}
	}
	return out
}

// isWireless reports whether /sys/class/net/<name>/wireless exists,
// which is the cheapest reliable 802.11 signal on Linux without an
// nl80211 netlink round-trip.
func isWireless(name string) bool {
	_, err := os.Stat("/sys/class/net/" + name + "/wireless")
	return err == nil
}

func parseUint64(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}
