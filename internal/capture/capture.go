// Package capture implements the platform-dispatched capture source
// (C6): opening a live handle on an interface, reading raw link-layer
// frames with a blocking-with-timeout Recv, and applying an optional
// BPF-style filter, per spec.md §4.6.
package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"
	"github.com/taniwha3/netwatch/internal/models"
)

// Filter is a BPF-style predicate: protocol name ("tcp", "udp", "icmp")
// and an optional port. Either field may be empty/zero to mean "any".
type Filter struct {
	Protocol string
	Port     int
}

// BPFExpr renders the filter as a libpcap filter expression. An empty
// Filter renders to "" (capture everything).
func (f Filter) BPFExpr() string {
	switch {
	case f.Protocol != "" && f.Port != 0:
		return fmt.Sprintf("%s port %d", f.Protocol, f.Port)
	case f.Protocol != "":
		return f.Protocol
	case f.Port != 0:
		return fmt.Sprintf("port %d", f.Port)
	default:
		return ""
	}
}

// snapLen is the max bytes captured per packet; large enough to
// capture full-size Ethernet frames including jumbo frames headers we
// care about decoding.
const snapLen = 65536

// readTimeout bounds how long Recv blocks before returning
// pcap.NextErrorTimeoutExpired, giving callers a cooperative
// cancellation point.
const readTimeout = 1 * time.Second

// Handle is a scoped, single-interface capture resource.
type Handle struct {
	name    string
	iface   models.InterfaceId
	pcap    *pcap.Handle
	linkTyp gopacket.LayerType
}

// Open acquires a live capture handle on the named interface. Callers
// without sufficient privilege get back models.ErrPermissionDenied
// wrapped with a platform-specific remediation hint (spec.md §4.6).
func Open(interfaceId models.InterfaceId, filter Filter) (*Handle, error) {
	name := string(interfaceId)

	inactive, err := pcap.NewInactiveHandle(name)
	if err != nil {
		return nil, wrapOpenError(name, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snapLen); err != nil {
		return nil, fmt.Errorf("%w: set snaplen: %v", models.ErrPlatformUnavailable, err)
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, fmt.Errorf("%w: set promiscuous mode: %v", models.ErrPlatformUnavailable, err)
	}
	if err := inactive.SetTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("%w: set read timeout: %v", models.ErrPlatformUnavailable, err)
	}

	active, err := inactive.Activate()
	if err != nil {
		return nil, wrapOpenError(name, err)
	}

	if expr := filter.BPFExpr(); expr != "" {
		if err := active.SetBPFFilter(expr); err != nil {
			active.Close()
			return nil, fmt.Errorf("%w: apply BPF filter %q: %v", models.ErrDecode, expr, err)
		}
	}

	return &Handle{
		name:    name,
		iface:   interfaceId,
		pcap:    active,
		linkTyp: active.LinkType(),
	}, nil
}

// Recv blocks until the next frame arrives or readTimeout elapses. The
// returned frame's RawBytes slice is owned by the pcap handle and is
// only valid until the next call to Recv on this Handle; callers that
// need it to outlive that call must copy it (spec.md §4.6).
func (h *Handle) Recv() (models.NetworkFrame, error) {
	data, ci, err := h.pcap.ZeroCopyReadPacketData()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			return models.NetworkFrame{}, ErrTimeout
		}
		return models.NetworkFrame{}, fmt.Errorf("%w: recv: %v", models.ErrDecode, err)
	}
	return models.NetworkFrame{
		Arrival:     ci.Timestamp,
		InterfaceId: h.iface,
		RawBytes:    data,
		Length:      ci.CaptureLength,
	}, nil
}

// LinkType reports the datalink layer the handle is decoding, so the
// protocol parser (C7) knows whether to expect Ethernet, SLL, or
// loopback framing.
func (h *Handle) LinkType() gopacket.LayerType {
	return h.linkTyp
}

// Close releases the capture handle.
func (h *Handle) Close() {
	if h.pcap != nil {
		h.pcap.Close()
	}
}

func wrapOpenError(name string, err error) error {
	if isPermissionError(err) {
		return models.NewPermissionDenied(fmt.Sprintf(
			"capturing on %q requires elevated privileges: run as root/Administrator, or grant CAP_NET_RAW (Linux) / install an access-control helper (macOS ChmodBPF) for this binary", name))
	}
	return fmt.Errorf("%w: open %q: %v", models.ErrPlatformUnavailable, name, err)
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	// libpcap surfaces permission failures as plain strings rather than
	// a typed sentinel on most platforms; match on the message.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "you don't have permission")
}
