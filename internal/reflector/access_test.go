package reflector

import (
	"net"
	"testing"

	"github.com/zsiec/reflect/internal/option"
)

func addr(t *testing.T, s string) option.SockAddr {
	t.Helper()
	return option.FromNetAddr(&net.TCPAddr{IP: net.ParseIP(s), Port: 1234})
}

func TestAccessListPrecedenceDenyThenAllow(t *testing.T) {
	list := AccessList{
		{Name: "*", Deny: "10.0.0.0/8"},
		{Name: "*", Allow: "*"},
	}
	if list.Allowed(addr(t, "10.1.2.3"), "live/stream1") {
		t.Fatal("expected 10.1.2.3 to be denied by the first matching rule")
	}
	if !list.Allowed(addr(t, "203.0.113.9"), "live/stream1") {
		t.Fatal("expected an address outside 10.0.0.0/8 to fall through to allow")
	}
}

func TestAccessListDefaultAllowWithNoMatchingRule(t *testing.T) {
	list := AccessList{
		{Name: "vip/*", Deny: "0.0.0.0/0"},
	}
	if !list.Allowed(addr(t, "198.51.100.1"), "live/stream1") {
		t.Fatal("expected default-allow when no rule's name matches the resource")
	}
}

func TestAccessListEmptyAllowsEverything(t *testing.T) {
	var list AccessList
	if !list.Allowed(addr(t, "198.51.100.1"), "anything") {
		t.Fatal("expected an empty access list to allow by default")
	}
}

func TestPatternMatchGlob(t *testing.T) {
	if !patternMatch("live/*", "live/stream1") {
		t.Fatal("expected live/* to match live/stream1")
	}
	if patternMatch("live/*", "vod/stream1") {
		t.Fatal("expected live/* not to match vod/stream1")
	}
	if !patternMatch("stream%", "streamA") {
		t.Fatal("expected stream%% to match a single trailing character")
	}
	if patternMatch("stream%", "streamAB") {
		t.Fatal("expected stream%% not to match two trailing characters")
	}
}
