package domain

import (
	"net/netip"
	"strings"
)

// NormalizeIPAddress parses an address as reported by a game server, which
// may carry a port ("1.2.3.4:28960"). It returns the canonical address text
// and false when the input is not an address.
func NormalizeIPAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	return "", false
}
