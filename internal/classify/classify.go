// Package classify implements the interface classifier (C2): a pure
// function mapping an interface name and its addresses to an
// InterfaceRecord with a kind and a 0..100 relevance score, grounded in
// the rule table of spec.md §4.2.
package classify

import (
	"regexp"
	"strings"

	"github.com/taniwha3/netwatch/internal/models"
)

var (
	loopbackRe     = regexp.MustCompile(`^lo\d*$`)
	macPrivateRe   = regexp.MustCompile(`^(anpi|awdl|llw|ap|bridge|gif|stf)\d*$`)
	utunRe         = regexp.MustCompile(`^utun\d*$`)
	linuxVpnRe     = regexp.MustCompile(`^(tailscale|wg)`)
	linuxVirtRe    = regexp.MustCompile(`^(docker|br-|virbr|veth|cni|flannel)`)
	windowsVirtRe  = regexp.MustCompile(`(?i)(virtual|vmware|hyper-v|loopback pseudo)`)
	wifiRe         = regexp.MustCompile(`^(wl|wlan|wifi|en)`)
	// Matches legacy names (eth0, en0) as well as Linux predictable
	// interface names (enp0s3, eno1, ens33, enx001122334455), per
	// spec.md §4.2 rule 6: "Ethernet prefixes", not digit-suffix-only.
	ethernetRe     = regexp.MustCompile(`(?i)^(eth|ethernet)\d*$|^en[a-z0-9]*\d$`)
)

// Rule evaluation order matters: first match wins, per spec.md §4.2.

// Classify is the pure function `classify(name, addresses) -> InterfaceRecord`
// from spec.md §4.2. wifi80211 reports whether the platform source could
// confirm an 802.11 association for this name (passed in because that
// signal is platform-specific and not derivable from the name alone).
func Classify(name string, addresses []string, wifi80211 bool) models.InterfaceRecord {
	rec := models.InterfaceRecord{
		Id:        models.InterfaceId(name),
		Addresses: addresses,
	}

	switch {
	case loopbackRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindLoopback, 5

	case utunRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindVpn, 80

	case macPrivateRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindSystemPrivate, 10

	case linuxVpnRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindVpn, 80

	case linuxVirtRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindContainerVirtual, 20

	case windowsVirtRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindContainerVirtual, 15

	case wifi80211 && wifiRe.MatchString(strings.ToLower(name)):
		rec.Kind, rec.RelevanceScore = models.KindWifi, 90

	case ethernetRe.MatchString(name):
		rec.Kind, rec.RelevanceScore = models.KindEthernet, 95

	default:
		rec.Kind, rec.RelevanceScore = models.KindUnknown, 30
	}

	return rec
}

// RelevanceFilter selects which interfaces a consumer should see.
type RelevanceFilter int

const (
	FilterShowAll RelevanceFilter = iota
	FilterImportantOnly
	FilterActiveOnly
)

// ImportantThreshold is the relevance score at or above which an
// interface is considered "important" per spec.md §4.2.
const ImportantThreshold = 80

// Passes reports whether rec satisfies the filter. activeDelta is only
// consulted for FilterActiveOnly and should be true when the interface
// had a nonzero byte/packet delta on the most recent cycle.
func Passes(filter RelevanceFilter, rec models.InterfaceRecord, activeDelta bool) bool {
	switch filter {
	case FilterImportantOnly:
		return rec.RelevanceScore >= ImportantThreshold
	case FilterActiveOnly:
		return activeDelta
	default:
		return true
	}
}
