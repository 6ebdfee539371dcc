// Package netsnap captures the local interface and broadcast addresses used
// to suppress noise in firewall log classification.
package netsnap

import (
	"fmt"
	"net"
	"net/netip"
)

// Snapshot is an immutable view of local addresses taken at one point in time.
type Snapshot struct {
	// Local maps each interface address to its interface name.
	Local     map[netip.Addr]string
	Broadcast map[netip.Addr]bool
}

// Provider produces snapshots.
type Provider interface {
	Snapshot() (*Snapshot, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (*Snapshot, error)

// Snapshot calls f.
func (f ProviderFunc) Snapshot() (*Snapshot, error) { return f() }

// System reads interfaces from the host.
var System Provider = ProviderFunc(Take)

// New builds a snapshot from explicit addresses.
func New(local map[string]string, broadcast ...string) *Snapshot {
	s := &Snapshot{
		Local:     make(map[netip.Addr]string),
		Broadcast: make(map[netip.Addr]bool),
	}
	for a, iface := range local {
		if ip, err := netip.ParseAddr(a); err == nil {
			s.Local[ip] = iface
		}
	}
	for _, b := range broadcast {
		if ip, err := netip.ParseAddr(b); err == nil {
			s.Broadcast[ip] = true
		}
	}
	return s
}

// Take reads the current interface addresses of the host.
func Take() (*Snapshot, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	s := &Snapshot{
		Local:     make(map[netip.Addr]string),
		Broadcast: make(map[netip.Addr]bool),
	}
	s.Broadcast[netip.AddrFrom4([4]byte{255, 255, 255, 255})] = true

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			s.Local[ip] = iface.Name
			if ip.Is4() && iface.Flags&net.FlagBroadcast != 0 {
				if b, ok := broadcastOf(ip, ipnet.Mask); ok {
					s.Broadcast[b] = true
				}
			}
		}
	}
	return s, nil
}

func broadcastOf(ip netip.Addr, mask net.IPMask) (netip.Addr, bool) {
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return netip.Addr{}, false
	}
	b := ip.As4()
	for i := range b {
		b[i] |= ^mask[i]
	}
	return netip.AddrFrom4(b), true
}

// IsLocal reports whether ip belongs to a local interface.
func (s *Snapshot) IsLocal(ip netip.Addr) bool {
	if s == nil {
		return false
	}
	_, ok := s.Local[ip.Unmap()]
	return ok
}

// IsBroadcast reports whether ip is a known broadcast address.
func (s *Snapshot) IsBroadcast(ip netip.Addr) bool {
	if s == nil {
		return false
	}
	return s.Broadcast[ip.Unmap()]
}
