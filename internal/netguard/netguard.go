// Package netguard classifies client addresses. Addresses in private, loopback
// or link-local ranges carry no geographic signal and are never looked up.
package netguard

import (
	"net"
	"strings"
)

// PrivateCIDRs are the non-routable networks treated as private.
var PrivateCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",    // loopback
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"100.64.0.0/10",  // carrier-grade NAT
		"169.254.0.0/16", // link-local
		"0.0.0.0/8",      // unspecified
		"::1/128",        // IPv6 loopback
		"fe80::/10",      // IPv6 link-local
		"fc00::/7",       // IPv6 unique local
	}
	var nets []*net.IPNet
	for _, c := range cidrs {
		_, ipNet, _ := net.ParseCIDR(c)
		nets = append(nets, ipNet)
	}
	return nets
}()

// IsPrivate returns true if the IP falls within a private/internal range.
func IsPrivate(ip net.IP) bool {
	for _, cidr := range PrivateCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseClientIP extracts the IP from a RemoteAddr-style "host:port" or a bare
// address. It returns nil when nothing parses.
func ParseClientIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	return net.ParseIP(addr)
}

// PublicIP parses addr and returns it only if it is a routable address.
func PublicIP(addr string) (net.IP, bool) {
	ip := ParseClientIP(addr)
	if ip == nil || IsPrivate(ip) {
		return nil, false
	}
	return ip, true
}
