package option

import (
	"net"
	"testing"
)

func TestSockAddrIPv4MappedV6Collapse(t *testing.T) {
	a := FromNetAddr(&net.TCPAddr{IP: net.ParseIP("::ffff:192.0.2.7"), Port: 9000})
	if a.IsV4MappedV6() {
		t.Fatal("expected the stored address to be collapsed, not reported as still-mapped")
	}
	if !a.IsV4() {
		t.Fatalf("expected a collapsed IPv4-mapped address to report IsV4, got %q", a.Address())
	}
	if a.Address() != "192.0.2.7" {
		t.Fatalf("Address() = %q, want 192.0.2.7", a.Address())
	}
}

func TestSockAddrMatchCIDR(t *testing.T) {
	a := FromNetAddr(&net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 1})
	if !a.Match("10.0.0.0/8") {
		t.Fatal("expected 10.1.2.3 to match 10.0.0.0/8")
	}
	if a.Match("192.168.0.0/16") {
		t.Fatal("expected 10.1.2.3 not to match 192.168.0.0/16")
	}
}

func TestSockAddrMatchExactIP(t *testing.T) {
	a := FromNetAddr(&net.TCPAddr{IP: net.ParseIP("198.51.100.5"), Port: 1})
	if !a.Match("198.51.100.5") {
		t.Fatal("expected exact IP match")
	}
	if a.Match("198.51.100.6") {
		t.Fatal("expected a differing exact IP not to match")
	}
}

func TestSockAddrMatchWildcard(t *testing.T) {
	a := FromNetAddr(&net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 1})
	if !a.Match("*") {
		t.Fatal("expected * to always match")
	}
}
