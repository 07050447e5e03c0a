//go:build windows

package ifsource

import (
	"context"
	"net"
	"time"

	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/taniwha3/netwatch/internal/models"
)

type gopsutilSource struct{}

func newPlatformSource() Source {
	return &gopsutilSource{}
}

// SampleAll uses gopsutil's WMI-backed IOCounters on Windows, mirroring
// the darwin implementation's shape.
func (s *gopsutilSource) SampleAll(ctx context.Context) ([]RawCounters, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, wrapUnavailable("gopsutil IOCounters", err)
	}

	now := time.Now()
	addrsByName := interfaceAddresses()

	out := make([]RawCounters, 0, len(counters))
	for _, io := range counters {
		meta := addrsByName[io.Name]
		out = append(out, RawCounters{
			Name:      io.Name,
			Addresses: meta.addrs,
			IsUp:      meta.up,
			Counters: models.CounterSample{
				Id:         models.InterfaceId(io.Name),
				RxBytes:    io.BytesRecv,
				TxBytes:    io.BytesSent,
				RxPackets:  io.PacketsRecv,
				TxPackets:  io.PacketsSent,
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

func interfaceAddresses() map[string]ifaceMeta {
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
