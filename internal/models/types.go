// Package models holds the data types shared by every component of the
// network-observability core: interface samples, throughput snapshots,
// packet records, and the aggregates built from them.
package models

import (
	"strconv"
	"time"
)

// InterfaceId is a stable interface name (e.g. "en0", "eth0", "utun3").
// Unique per host at a point in time.
type InterfaceId string

// InterfaceKind labels the role an interface plays on the host.
type InterfaceKind int

const (
	KindUnknown InterfaceKind = iota
	KindEthernet
	KindWifi
	KindVpn
	KindLoopback
	KindVirtualBridge
	KindContainerVirtual
	KindSystemPrivate
)

func (k InterfaceKind) String() string {
	switch k {
	case KindEthernet:
		return "ethernet"
	case KindWifi:
		return "wifi"
	case KindVpn:
		return "vpn"
	case KindLoopback:
		return "loopback"
	case KindVirtualBridge:
		return "virtual_bridge"
	case KindContainerVirtual:
		return "container_virtual"
	case KindSystemPrivate:
		return "system_private"
	default:
		return "unknown"
	}
}

// InterfaceRecord is produced by the classifier once per polling cycle.
// Only the Id is stable across cycles.
type InterfaceRecord struct {
	Id              InterfaceId
	Kind            InterfaceKind
	RelevanceScore  int // 0..100
	Addresses       []string
	IsUp            bool
	LinkSpeedMbps   int  // optional, Linux ethtool enrichment; 0 if unknown
	LinkSpeedKnown  bool // true when ethtool reported a speed
}

// CounterSample is an immutable snapshot of one interface's monotonic
// byte/packet counters, produced by the platform interface source (C1).
type CounterSample struct {
	Id         InterfaceId
	RxBytes    uint64
	TxBytes    uint64
	RxPackets  uint64
	TxPackets  uint64
	CapturedAt time.Time // monotonic reading (time.Now(), has monotonic reading attached)
	WallTime   time.Time // wall-clock reading, used only to detect clock jumps
}

// Anomaly classifies why a SampleDelta might not be trustworthy.
type Anomaly int

const (
	AnomalyNone Anomaly = iota
	AnomalyCounterReset
	AnomalyTimeJump
	AnomalyStale
)

func (a Anomaly) String() string {
	switch a {
	case AnomalyCounterReset:
		return "counter_reset"
	case AnomalyTimeJump:
		return "time_jump"
	case AnomalyStale:
		return "stale"
	default:
		return "none"
	}
}

// Confidence is an ordered four-level self-assessment of how much an
// estimate should be trusted: None < Low < Medium < High.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "none"
	}
}

// SampleDelta is the result of diffing two consecutive CounterSamples
// for the same interface (C3).
type SampleDelta struct {
	Id             InterfaceId
	RxByteDelta    uint64
	TxByteDelta    uint64
	RxPacketDelta  uint64
	TxPacketDelta  uint64
	ElapsedSeconds float64
	Anomaly        Anomaly
	Confidence     Confidence
}

// ThroughputSnapshot is the append-only per-interface throughput record
// emitted by the bandwidth collector (C5) each cycle.
type ThroughputSnapshot struct {
	Timestamp            time.Time
	InterfaceId          InterfaceId
	DownloadBps          float64
	UploadBps            float64
	BytesReceivedTotal   uint64
	BytesSentTotal       uint64
	PacketsReceivedTotal uint64
	PacketsSentTotal     uint64
	Confidence           Confidence
}

// NetworkFrame is a single captured link-layer unit (C6). RawBytes is
// only valid until the next Recv() call on the handle that produced it;
// callers that need it to outlive that call must copy it.
type NetworkFrame struct {
	Arrival     time.Time
	InterfaceId InterfaceId
	RawBytes    []byte
	Length      int
}

// Direction classifies a packet relative to the capturing interface.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionIn
	DirectionOut
	DirectionLocal
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	case DirectionLocal:
		return "local"
	default:
		return "unknown"
	}
}

// NetProto identifies the network-layer protocol of a packet.
type NetProto int

const (
	NetProtoOther NetProto = iota
	NetProtoIPv4
	NetProtoIPv6
	NetProtoArp
)

func (p NetProto) String() string {
	switch p {
	case NetProtoIPv4:
		return "ipv4"
	case NetProtoIPv6:
		return "ipv6"
	case NetProtoArp:
		return "arp"
	default:
		return "other"
	}
}

// Transport identifies the transport-layer protocol of a packet.
type Transport int

const (
	TransportOther Transport = iota
	TransportTCP
	TransportUDP
	TransportICMP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	case TransportICMP:
		return "icmp"
	default:
		return "other"
	}
}

// AppProto identifies the application-layer protocol inferred for a
// packet by the protocol parser (C7).
type AppProto int

const (
	AppProtoUnknown AppProto = iota
	AppProtoHTTP
	AppProtoHTTPS
	AppProtoDNS
	AppProtoSSH
	AppProtoSMTP
	AppProtoPOP3
	AppProtoIMAP
	AppProtoMySQL
	AppProtoPostgres
	AppProtoRedis
	AppProtoMongoDB
	AppProtoTLS
	AppProtoICMP
)

func (a AppProto) String() string {
	switch a {
	case AppProtoHTTP:
		return "http"
	case AppProtoHTTPS:
		return "https"
	case AppProtoDNS:
		return "dns"
	case AppProtoSSH:
		return "ssh"
	case AppProtoSMTP:
		return "smtp"
	case AppProtoPOP3:
		return "pop3"
	case AppProtoIMAP:
		return "imap"
	case AppProtoMySQL:
		return "mysql"
	case AppProtoPostgres:
		return "postgres"
	case AppProtoRedis:
		return "redis"
	case AppProtoMongoDB:
		return "mongodb"
	case AppProtoTLS:
		return "tls"
	case AppProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// PacketFlags carries advisory, non-authoritative observations about a
// packet. They never affect classification, only annotate it.
type PacketFlags struct {
	SignatureOnly   bool // only one of port and payload signature matched, or the two named different protos
	SensitivePlain  bool // plaintext traffic on a sensitive port with no TLS signature
	HighFrequency   bool // unknown port, large payload, high frequency to same peer within 1s
}

// PacketRecord is the immutable product of decoding one NetworkFrame (C7).
type PacketRecord struct {
	Arrival     time.Time
	InterfaceId InterfaceId
	SizeBytes   int
	Direction   Direction
	LinkProto   string
	NetProto    NetProto
	Transport   Transport
	SrcIP       string
	DstIP       string
	SrcPort     uint16
	DstPort     uint16
	AppProto    AppProto
	Flags       PacketFlags

	// Enrichment fields populated when the relevant decoder fires.
	TLSServerName string
	JA3           string
	DNSQuestion   string
}

// ConnectionKey canonicalizes a 4-tuple + transport so that direction is
// folded: the lexicographically smaller endpoint (ip:port) is always "A".
type ConnectionKey struct {
	AEndpoint string
	BEndpoint string
	Transport Transport
}

// NewConnectionKey builds a canonical ConnectionKey from a packet's raw
// endpoints, folding direction so (A,B) and (B,A) collide.
func NewConnectionKey(srcIP string, srcPort uint16, dstIP string, dstPort uint16, transport Transport) ConnectionKey {
	src := endpoint(srcIP, srcPort)
	dst := endpoint(dstIP, dstPort)
	if src <= dst {
		return ConnectionKey{AEndpoint: src, BEndpoint: dst, Transport: transport}
	}
	return ConnectionKey{AEndpoint: dst, BEndpoint: src, Transport: transport}
}

func endpoint(ip string, port uint16) string {
	return ip + ":" + strconv.Itoa(int(port))
}

// ProtocolCount is one row of a per-protocol byte/packet histogram.
type ProtocolCount struct {
	AppProto AppProto
	Bytes    uint64
	Packets  uint64
}

// ConnectionPattern is an aggregated view of one ConnectionKey over a
// time range, keyed and enriched for display/analysis (C10).
type ConnectionPattern struct {
	Key           ConnectionKey
	FirstSeen     time.Time
	LastSeen      time.Time
	TotalBytes    uint64
	TotalPackets  uint64
	AppProto      AppProto
	SrcGeoCountry string // optional, set only when GeoIP enrichment is configured
	DstGeoCountry string // optional, set only when GeoIP enrichment is configured
}

// TrafficSummary aggregates all traffic for (interface, time range) (C10).
type TrafficSummary struct {
	InterfaceId      InterfaceId
	Start            time.Time
	End              time.Time
	TotalBytesIn     uint64
	TotalBytesOut    uint64
	TotalPacketsIn   uint64
	TotalPacketsOut  uint64
	ByAppProto       []ProtocolCount
	ConnectionCount  int
	TopConnections   []ConnectionPattern
}

// ThroughputBucket is one bucketized point of a throughput_series query.
type ThroughputBucket struct {
	BucketStart    time.Time
	AvgDownloadBps float64
	AvgUploadBps   float64
	MinConfidence  Confidence
}
