package option

import (
	"net"
	"net/netip"
	"strings"
)

// SockAddr wraps a resolved peer/local address with the IPv4-mapped-IPv6
// collapsing and CIDR/glob matching original_source/src/sockaddr.h provides.
type SockAddr struct {
	addr netip.Addr
	port uint16
}

// FromNetAddr builds a SockAddr from a net.Addr (as returned by an accepted
// SRT connection's RemoteAddr/LocalAddr), collapsing IPv4-mapped-IPv6
// addresses to plain IPv4 the way ConvertV4MappedV6ToV4 does.
func FromNetAddr(a net.Addr) SockAddr {
	host, port := splitHostPort(a.String())
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return SockAddr{}
	}
	return SockAddr{addr: ip, port: port}.collapsed()
}

func splitHostPort(hostport string) (string, uint16) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0
	}
	var port uint16
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return host, 0
		}
		port = port*10 + uint16(c-'0')
	}
	return host, port
}

func (s SockAddr) collapsed() SockAddr {
	if s.addr.Is4In6() {
		return SockAddr{addr: s.addr.Unmap(), port: s.port}
	}
	return s
}

// IsV4 reports whether the address is (after collapsing) an IPv4 address.
func (s SockAddr) IsV4() bool { return s.addr.Is4() }

// IsV6 reports whether the address is a (non-mapped) IPv6 address.
func (s SockAddr) IsV6() bool { return s.addr.Is6() && !s.addr.Is4In6() }

// IsV4MappedV6 reports whether the stored address is an IPv4-mapped IPv6
// address. A SockAddr built by FromNetAddr is already collapsed, so this is
// false for it even when the peer connected as "::ffff:a.b.c.d".
func (s SockAddr) IsV4MappedV6() bool { return s.addr.Is4In6() }

// Address returns the (collapsed) address as a string, e.g. "192.0.2.7" for
// a peer that connected to an IPv6 listener as "::ffff:192.0.2.7" — spec.md
// §8 scenario 4.
func (s SockAddr) Address() string { return s.addr.String() }

// Port returns the peer port.
func (s SockAddr) Port() uint16 { return s.port }

func (s SockAddr) String() string {
	if s.addr.Is6() && !s.addr.Is4In6() {
		return "[" + s.addr.String() + "]:" + portString(s.port)
	}
	return s.addr.String() + ":" + portString(s.port)
}

func portString(p uint16) string {
	if p == 0 {
		return "0"
	}
	digits := [5]byte{}
	i := len(digits)
	for p > 0 {
		i--
		digits[i] = byte('0' + p%10)
		p /= 10
	}
	return string(digits[i:])
}

// Match reports whether the address satisfies condition, which may be:
//   - "*" (always matches)
//   - a CIDR range, e.g. "10.0.0.0/8"
//   - a bare IP, matched exactly
//
// Grounded on sockaddr.h's SockAddr::Match, used by the access allow/deny
// lists in spec.md §4.4 and §8's access-list precedence property.
func (s SockAddr) Match(condition string) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" || condition == "*" {
		return true
	}
	if strings.Contains(condition, "/") {
		prefix, err := netip.ParsePrefix(condition)
		if err != nil {
			return false
		}
		return prefix.Contains(s.addr)
	}
	ip, err := netip.ParseAddr(condition)
	if err != nil {
		return false
	}
	return ip == s.addr
}
