//go:build linux

package ifsource

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// namedNetnsDir is where `ip netns add <name>` registers bind-mounted
// namespace handles; ifsource walks it to discover container/VM network
// namespaces that don't appear in the root namespace's interface list.
const namedNetnsDir = "/var/run/netns"

// netlinkAddresses enumerates interfaces and their addresses via a
// NETLINK_ROUTE socket instead of the net package, the way
// grimm-is-flywall's control plane does for its interface inventory. It
// returns nil (never an empty, non-nil map) on any failure so the caller
// falls back to the standard library cleanly; a sandboxed or
// unprivileged process commonly can't open the netlink socket, and that
// must never prevent counter sampling.
//
// In addition to the calling process's own (root) namespace, it walks
// /var/run/netns and enumerates each named namespace found there,
// prefixing their interface names with "<nsname>/" so a veth end living
// inside a container namespace is still visible to classification
// rather than silently missing from the inventory.
func netlinkAddresses() map[string]ifaceMeta {
	out := rootNamespaceAddresses()
	if out == nil {
		return nil
	}

	for name, meta := range namedNamespaceAddresses() {
		out[name] = meta
	}
	return out
}

func rootNamespaceAddresses() map[string]ifaceMeta {
	links, err := netlink.LinkList()
	if err != nil {
		return nil
	}
	return linksToAddresses(links, "")
}

// namedNamespaceAddresses enumerates every namespace registered under
// /var/run/netns. Each lookup briefly switches the calling OS thread's
// network namespace via netns.Set, so it runs on a locked goroutine and
// always restores the original namespace before returning, even on
// error or panic during enumeration of one namespace.
func namedNamespaceAddresses() map[string]ifaceMeta {
	entries, err := os.ReadDir(namedNetnsDir)
	if err != nil {
		return nil
	}

	origin, err := netns.Get()
	if err != nil {
		return nil
	}
	defer origin.Close()

	out := make(map[string]ifaceMeta)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		addrs := withNamespace(name, func() map[string]ifaceMeta {
			links, err := netlink.LinkList()
			if err != nil {
				return nil
			}
			return linksToAddresses(links, name+"/")
		}, origin)
		for k, v := range addrs {
			out[k] = v
		}
	}
	return out
}

// withNamespace runs fn with the OS thread's network namespace switched
// to the one registered under /var/run/netns/name, restoring origin
// before returning regardless of outcome.
func withNamespace(name string, fn func() map[string]ifaceMeta, origin netns.NsHandle) map[string]ifaceMeta {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle, err := netns.GetFromPath(filepath.Join(namedNetnsDir, name))
	if err != nil {
		return nil
	}
	defer handle.Close()

	if err := netns.Set(handle); err != nil {
		return nil
	}
	defer netns.Set(origin)

	return fn()
}

func linksToAddresses(links []netlink.Link, prefix string) map[string]ifaceMeta {
	out := make(map[string]ifaceMeta, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil {
			continue
		}

		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			out[prefix+attrs.Name] = ifaceMeta{up: attrs.Flags&netlinkFlagUp != 0}
			continue
		}

		var strs []string
		for _, a := range addrs {
			if a.IPNet != nil {
				strs = append(strs, a.IPNet.String())
			}
		}
		out[prefix+attrs.Name] = ifaceMeta{
			addrs: strs,
			up:    attrs.Flags&netlinkFlagUp != 0,
		}
	}
	return out
}

// netlinkFlagUp mirrors net.FlagUp's bit for netlink.LinkAttrs.Flags,
// which is a raw net/iface flag word (IFF_UP), not the net package's
// own Flags enum.
const netlinkFlagUp = 1 << 0
