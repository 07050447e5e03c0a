//go:build !linux

package classify

import "github.com/taniwha3/netwatch/internal/models"

// EnrichLinkState is a no-op outside Linux: ethtool ioctls are
// Linux-specific, and macOS/Windows report is_up via the platform
// interface source's own address/flag enumeration instead.
func EnrichLinkState(rec *models.InterfaceRecord) {}
