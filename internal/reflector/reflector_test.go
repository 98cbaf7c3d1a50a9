package reflector

import (
	"context"
	"testing"

	"github.com/zsiec/reflect/internal/option"
)

func streamOf(t *testing.T, resource, mode string) option.StreamOption {
	t.Helper()
	return option.ParseStreamID("#!::r=" + resource + ",m=" + mode)
}

func newTestReflector(t *testing.T) *Reflector {
	t.Helper()
	return New(context.Background(), Config{App: "live"}, nil, nil)
}

func TestOnPreAcceptPublishUnknownAllowed(t *testing.T) {
	rf := newTestReflector(t)
	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if !rf.OnPreAccept(opt, peer, streamOf(t, "stream1", option.ModePublish)) {
		t.Fatal("expected publish of an unknown resource to be allowed")
	}
}

func TestOnPreAcceptPublishKnownDenied(t *testing.T) {
	rf := newTestReflector(t)
	rf.mu.Lock()
	rf.receivers["stream1"] = nil
	rf.mu.Unlock()

	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if rf.OnPreAccept(opt, peer, streamOf(t, "stream1", option.ModePublish)) {
		t.Fatal("expected publish of an already-published resource to be denied")
	}
}

func TestOnPreAcceptRequestKnownAllowed(t *testing.T) {
	rf := newTestReflector(t)
	rf.mu.Lock()
	rf.receivers["stream1"] = nil
	rf.mu.Unlock()

	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if !rf.OnPreAccept(opt, peer, streamOf(t, "stream1", option.ModeRequest)) {
		t.Fatal("expected request for a live resource to be allowed")
	}
}

func TestOnPreAcceptRequestUnknownNoLoopRecDenied(t *testing.T) {
	rf := newTestReflector(t)
	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if rf.OnPreAccept(opt, peer, streamOf(t, "stream1", option.ModeRequest)) {
		t.Fatal("expected request for an unknown resource with no loopRec to be denied")
	}
}

func TestOnPreAcceptBidirectionalAlwaysDenied(t *testing.T) {
	rf := newTestReflector(t)
	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if rf.OnPreAccept(opt, peer, streamOf(t, "stream1", option.ModeBidirectional)) {
		t.Fatal("expected bidirectional mode to always be denied")
	}
}

func TestOnPreAcceptEmptyResourceDenied(t *testing.T) {
	rf := newTestReflector(t)
	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if rf.OnPreAccept(opt, peer, streamOf(t, "", option.ModePublish)) {
		t.Fatal("expected an empty resource name to always be denied")
	}
}

func TestOnPreAcceptAccessListDeniesBeforeModeCheck(t *testing.T) {
	rf := New(context.Background(), Config{
		App:           "live",
		PublishAccess: AccessList{{Name: "*", Deny: "198.51.100.0/24"}},
	}, nil, nil)

	opt := option.New()
	peer := addr(t, "198.51.100.1")
	if rf.OnPreAccept(opt, peer, streamOf(t, "stream1", option.ModePublish)) {
		t.Fatal("expected the access list to deny regardless of the resource being unknown")
	}
}
