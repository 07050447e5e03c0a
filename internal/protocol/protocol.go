// Package protocol implements the protocol parser (C7): a pure decode
// from a captured NetworkFrame to a PacketRecord, short-circuiting on
// the first decode failure at any layer, per spec.md §4.7.
package protocol

import (
	"encoding/hex"
	"errors"
	"net"

	"github.com/dreadl0ck/ja3"
	"github.com/dreadl0ck/tlsx"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/miekg/dns"
	"github.com/taniwha3/netwatch/internal/models"
)

// ErrTruncated is returned when a layer's header is shorter than its
// own declared length.
var ErrTruncated = errors.New("protocol: truncated header")

// Parser decodes NetworkFrames into PacketRecords. It is safe for
// concurrent use: it holds no mutable state between calls, matching
// spec.md §4.7's "pure decode" characterization.
type Parser struct {
	linkType gopacket.LayerType
	// localAddrs is the set of addresses known to belong to the
	// capturing interface, used to derive Direction.
	localAddrs map[string]bool
}

// NewParser builds a Parser for frames captured with the given
// link-layer type and the interface's own addresses (for direction
// derivation).
func NewParser(linkType gopacket.LayerType, localAddrs []string) *Parser {
	set := make(map[string]bool, len(localAddrs))
	for _, a := range localAddrs {
		if ip := stripCIDR(a); ip != "" {
			set[ip] = true
		}
	}
	return &Parser{linkType: linkType, localAddrs: set}
}

func stripCIDR(addr string) string {
	if ip, _, err := net.ParseCIDR(addr); err == nil {
		return ip.String()
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return ""
}

// Parse decodes a single frame. Decode errors are never fatal to the
// caller's batch; they're returned so the pipeline can count them.
func (p *Parser) Parse(frame models.NetworkFrame) (models.PacketRecord, error) {
	rec := models.PacketRecord{
		Arrival:     frame.Arrival,
		InterfaceId: frame.InterfaceId,
		SizeBytes:   frame.Length,
	}

	packet := gopacket.NewPacket(frame.RawBytes, p.linkType, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		if arp := packet.Layer(layers.LayerTypeARP); arp != nil {
			rec.NetProto = models.NetProtoArp
			return rec, nil
		}
		return rec, ErrTruncated
	}

	switch nl := netLayer.(type) {
	case *layers.IPv4:
		rec.NetProto = models.NetProtoIPv4
		rec.SrcIP = nl.SrcIP.String()
		rec.DstIP = nl.DstIP.String()
	case *layers.IPv6:
		rec.NetProto = models.NetProtoIPv6
		rec.SrcIP = nl.SrcIP.String()
		rec.DstIP = nl.DstIP.String()
	default:
		return rec, ErrTruncated
	}

	rec.Direction = p.direction(rec.SrcIP, rec.DstIP)

	var payload []byte
	if transLayer := packet.TransportLayer(); transLayer != nil {
		switch tl := transLayer.(type) {
		case *layers.TCP:
			rec.Transport = models.TransportTCP
			rec.SrcPort = uint16(tl.SrcPort)
			rec.DstPort = uint16(tl.DstPort)
			payload = tl.Payload
		case *layers.UDP:
			rec.Transport = models.TransportUDP
			rec.SrcPort = uint16(tl.SrcPort)
			rec.DstPort = uint16(tl.DstPort)
			payload = tl.Payload
		}
	} else if icmp := packet.Layer(layers.LayerTypeICMPv4); icmp != nil {
		rec.Transport = models.TransportICMP
		rec.AppProto = models.AppProtoICMP
		return rec, nil
	} else if icmp6 := packet.Layer(layers.LayerTypeICMPv6); icmp6 != nil {
		rec.Transport = models.TransportICMP
		rec.AppProto = models.AppProtoICMP
		return rec, nil
	} else {
		rec.Transport = models.TransportOther
		return rec, nil
	}

	portProto, portMatched := appProtoByPort(rec.SrcPort, rec.DstPort)
	sigProto, sigMatched, enrichment := appProtoBySignature(packet, rec.Transport, payload)

	switch {
	case portMatched && sigMatched && portProto == sigProto:
		rec.AppProto = portProto
	case sigMatched:
		rec.AppProto = sigProto
		if !portMatched || portProto != sigProto {
			rec.Flags.SignatureOnly = true
		}
	case portMatched:
		rec.AppProto = portProto
		rec.Flags.SignatureOnly = true
	default:
		rec.AppProto = models.AppProtoUnknown
	}

	rec.TLSServerName = enrichment.sni
	rec.JA3 = enrichment.ja3
	rec.DNSQuestion = enrichment.dnsQuestion

	applySecurityFlags(&rec, payload)

	return rec, nil
}

func (p *Parser) direction(srcIP, dstIP string) models.Direction {
	srcLocal := p.localAddrs[srcIP]
	dstLocal := p.localAddrs[dstIP]
	switch {
	case srcLocal && dstLocal:
		return models.DirectionLocal
	case srcLocal:
		return models.DirectionOut
	case dstLocal:
		return models.DirectionIn
	default:
		return models.DirectionUnknown
	}
}

// appProtoByPort implements the port heuristic table from spec.md
// §4.7 step 4, checking both source and destination ports since the
// well-known port may be on either side of the connection.
func appProtoByPort(srcPort, dstPort uint16) (models.AppProto, bool) {
	for _, port := range [2]uint16{dstPort, srcPort} {
		if proto, ok := portTable[port]; ok {
			return proto, true
		}
	}
	return models.AppProtoUnknown, false
}

var portTable = map[uint16]models.AppProto{
	80:   models.AppProtoHTTP,
	443:  models.AppProtoHTTPS,
	53:   models.AppProtoDNS,
	22:   models.AppProtoSSH,
	25:   models.AppProtoSMTP,
	465:  models.AppProtoSMTP,
	587:  models.AppProtoSMTP,
	110:  models.AppProtoPOP3,
	995:  models.AppProtoPOP3,
	143:  models.AppProtoIMAP,
	993:  models.AppProtoIMAP,
	3306: models.AppProtoMySQL,
	5432: models.AppProtoPostgres,
	6379: models.AppProtoRedis,
	27017: models.AppProtoMongoDB,
	8080: models.AppProtoHTTP,
	8443: models.AppProtoHTTPS,
}

type signatureEnrichment struct {
	sni         string
	ja3         string
	dnsQuestion string
}

// appProtoBySignature implements the payload-prefix heuristic from
// spec.md §4.7 step 4.
func appProtoBySignature(packet gopacket.Packet, transport models.Transport, payload []byte) (models.AppProto, bool, signatureEnrichment) {
	var enr signatureEnrichment

	if len(payload) >= 4 && (hasPrefix(payload, "GET ") || hasPrefix(payload, "POST") || hasPrefix(payload, "HTTP/1.")) {
		return models.AppProtoHTTP, true, enr
	}

	if len(payload) >= 3 && payload[0] == 0x16 && payload[1] == 0x03 && payload[2] <= 0x03 {
		enr.sni, enr.ja3 = extractTLS(packet, payload)
		return models.AppProtoTLS, true, enr
	}

	if transport == models.TransportUDP && len(payload) >= 12 {
		if q, ok := extractDNSQuestion(payload); ok {
			enr.dnsQuestion = q
			return models.AppProtoDNS, true, enr
		}
	}

	return models.AppProtoUnknown, false, enr
}

func hasPrefix(b []byte, prefix string) bool {
	if len(b) < len(prefix) {
		return false
	}
	return string(b[:len(prefix)]) == prefix
}

// extractTLS pulls the SNI (via tlsx) and JA3 fingerprint (via
// dreadl0ck/ja3) out of a TLS ClientHello. Either may come back empty
// if this isn't a ClientHello or the parse fails; both are advisory
// enrichments, never required for AppProtoTLS classification.
func extractTLS(packet gopacket.Packet, payload []byte) (sni, ja3Hash string) {
	if len(payload) > 5 && payload[5] == 0x01 {
		hello := &tlsx.ClientHello{}
		if err := hello.Unmarshal(payload); err == nil {
			sni = hello.SNI
		}
		digest := ja3.DigestPacket(packet)
		if digest != [16]byte{} {
			ja3Hash = hex.EncodeToString(digest[:])
		}
	}
	return sni, ja3Hash
}

func extractDNSQuestion(payload []byte) (string, bool) {
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return "", false
	}
	if len(msg.Question) == 0 {
		return "", false
	}
	return msg.Question[0].Name, true
}

// applySecurityFlags sets the advisory flags from spec.md §4.7
// "Security flags" that a single packet can determine: it sets only
// SensitivePlain, for plaintext traffic on a sensitive port with no TLS
// signature. HighFrequency is not set here, and no other package sets
// it either.
func applySecurityFlags(rec *models.PacketRecord, payload []byte) {
	sensitivePort := rec.DstPort == 80 || rec.SrcPort == 80 ||
		rec.DstPort == 21 || rec.SrcPort == 21 ||
		rec.DstPort == 23 || rec.SrcPort == 23
	looksLikeTLS := len(payload) >= 1 && payload[0] == 0x16
	if sensitivePort && !looksLikeTLS && len(payload) > 0 {
		rec.Flags.SensitivePlain = true
	}
}
