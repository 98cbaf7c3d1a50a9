package srt

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestChooseBindAddrsEmptyHostPrefersIPv6(t *testing.T) {
	got := chooseBindAddrs("", []net.IP{net.IPv6zero, net.IPv4zero})
	if len(got) != 1 {
		t.Fatalf("want 1 addr, got %d (%v)", len(got), got)
	}
	if got[0].ip.To4() != nil {
		t.Fatalf("want the IPv6 wildcard kept, got %v", got[0].ip)
	}
	if got[0].ipv6Only {
		t.Fatalf("empty host must bind IPv6Only=false so IPv4-mapped addresses work")
	}
}

func TestChooseBindAddrsEmptyHostOnlyIPv4Resolved(t *testing.T) {
	got := chooseBindAddrs("", []net.IP{net.IPv4zero})
	if len(got) != 1 || got[0].ip.To4() == nil {
		t.Fatalf("want the lone IPv4 addr kept, got %v", got)
	}
}

func TestChooseBindAddrsNonEmptyHostBindsEveryAddrIPv6Only(t *testing.T) {
	v6 := net.ParseIP("2001:db8::1")
	v4 := net.ParseIP("203.0.113.1")
	got := chooseBindAddrs("example.com", []net.IP{v6, v4})
	if len(got) != 2 {
		t.Fatalf("want both addrs kept for a specific host, got %d", len(got))
	}
	for _, ba := range got {
		if ba.ip.To4() == nil && !ba.ipv6Only {
			t.Fatalf("non-empty host must bind IPv6 addrs with IPv6Only=true: %v", ba)
		}
	}
}

func TestResolveIPsEmptyHostReturnsBothWildcards(t *testing.T) {
	ips, err := resolveIPs(context.Background(), "")
	if err != nil {
		t.Fatalf("resolveIPs: %v", err)
	}
	if len(ips) != 2 {
		t.Fatalf("want 2 wildcard addrs, got %d", len(ips))
	}
}

func TestEndpointBacklogDefault(t *testing.T) {
	if got := (Endpoint{}).backlog(); got != 10 {
		t.Fatalf("want default backlog 10, got %d", got)
	}
	if got := (Endpoint{Backlog: 64}).backlog(); got != 64 {
		t.Fatalf("want configured backlog 64, got %d", got)
	}
}

func TestEndpointEpollTimeoDefault(t *testing.T) {
	if got := (Endpoint{}).epollTimeo(); got != 100*time.Millisecond {
		t.Fatalf("want default 100ms, got %v", got)
	}
	if got := (Endpoint{EpollTimeo: 50}).epollTimeo(); got != 50*time.Millisecond {
		t.Fatalf("want configured 50ms, got %v", got)
	}
}
