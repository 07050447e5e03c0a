//go:build linux

package classify

import (
	"github.com/safchain/ethtool"
	"github.com/taniwha3/netwatch/internal/models"
)

// EnrichLinkState queries ethtool for the negotiated link speed and
// writes it into rec (LinkSpeedMbps, LinkSpeedKnown); link up/down is
// not queried here. Any failure (commonly a permission
// issue, since ethtool ioctls require CAP_NET_ADMIN on some kernels) is
// swallowed: link enrichment is advisory and must never fail
// classification, per spec.md §4.2's "pure function" contract — this is
// called after Classify, not from within it.
func EnrichLinkState(rec *models.InterfaceRecord) {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return
	}
	defer et.Close()

	name := string(rec.Id)

	if speed, err := et.CmdGetMapped(name); err == nil {
		if spd, ok := speed["Speed"]; ok {
			rec.LinkSpeedMbps = int(spd)
			rec.LinkSpeedKnown = true
		}
	}
}
