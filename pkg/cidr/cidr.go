// pkg/cidr/cidr.go
// Address and prefix helpers for scan target validation

package cidr

import (
	"fmt"
	"net/netip"
	"strings"
)

// CIDR size limits for scan targets (defaults for targets.max_hosts)
const (
	// DefaultMaxIPv4PrefixBits keeps a single request at or below a /16
	DefaultMaxIPv4PrefixBits = 16
	// DefaultMaxHosts is the host ceiling corresponding to a /16
	DefaultMaxHosts uint64 = 1 << (32 - DefaultMaxIPv4PrefixBits)
)

// ParsePrefix parses a CIDR or a single address. A bare address becomes a
// /32 or /128 prefix. Host bits are cleared.
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, fmt.Errorf("empty address")
	}

	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		addr, addrErr := netip.ParseAddr(s)
		if addrErr != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR or IP %q: expected format like \"192.168.1.0/24\" or \"10.0.0.1\"", s)
		}
		if addr.Zone() != "" {
			return netip.Prefix{}, fmt.Errorf("zoned address %q is not supported", s)
		}
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	return prefix.Masked(), nil
}

// IsSingleHost reports whether prefix covers exactly one address
func IsSingleHost(prefix netip.Prefix) bool {
	return prefix.Bits() == prefix.Addr().BitLen()
}

// HostCount returns the number of addresses in prefix. IPv6 counts are
// capped at 2^60 to stay within uint64.
func HostCount(prefix netip.Prefix) uint64 {
	bits := prefix.Bits()
	if bits < 0 {
		return 0
	}

	hostBits := prefix.Addr().BitLen() - bits
	if hostBits > 60 {
		hostBits = 60
	}
	return uint64(1) << uint(hostBits) //nolint:gosec // G115: hostBits is within 0-60
}

// IsPrivate checks if addr is in a private, loopback or link-local range
func IsPrivate(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

// PrefixIsPrivate reports whether every address of prefix is private.
// A prefix wider than the private block it starts in is not private.
func PrefixIsPrivate(prefix netip.Prefix) bool {
	if !IsPrivate(prefix.Addr()) {
		return false
	}
	last := lastAddr(prefix)
	return IsPrivate(last)
}

// SizeInfo describes how large a target prefix is
type SizeInfo struct {
	Hosts    uint64
	MaxHosts uint64
	Warning  string
}

// CheckSize returns an error when prefix exceeds maxHosts (0 disables the
// ceiling) and a warning for prefixes larger than a /24
func CheckSize(prefix netip.Prefix, maxHosts uint64) (*SizeInfo, error) {
	info := &SizeInfo{
		Hosts:    HostCount(prefix),
		MaxHosts: maxHosts,
	}

	if maxHosts > 0 && info.Hosts > maxHosts {
		return info, fmt.Errorf("prefix %s covers %d addresses, limit is %d", prefix, info.Hosts, maxHosts)
	}
	if info.Hosts > 256 {
		info.Warning = fmt.Sprintf("large scan: %d addresses in %s", info.Hosts, prefix)
	}
	return info, nil
}

// lastAddr returns the highest address in prefix
func lastAddr(prefix netip.Prefix) netip.Addr {
	raw := prefix.Masked().Addr().AsSlice()
	hostBits := len(raw)*8 - prefix.Bits()
	for i := len(raw) - 1; i >= 0 && hostBits > 0; i-- {
		n := hostBits
		if n > 8 {
			n = 8
		}
		raw[i] |= 0xff >> uint(8-n)
		hostBits -= n
	}
	addr, _ := netip.AddrFromSlice(raw)
	return addr
}
