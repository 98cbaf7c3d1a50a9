package recorder

import (
	"context"
	"testing"
	"time"
)

func newTestLoopRec(t *testing.T, cfg Config) *LoopRec {
	t.Helper()
	cfg.Dir = t.TempDir()
	lr, err := New(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(lr.Close)
	return lr
}

func TestLoopRecNormalizeDefaults(t *testing.T) {
	cfg := Config{}
	cfg.Normalize("host")
	if cfg.DataExt != "dat" || cfg.IdxExt != "idx" {
		t.Fatalf("default extensions = %q/%q", cfg.DataExt, cfg.IdxExt)
	}
	if cfg.SegmentDuration != 600*time.Second {
		t.Fatalf("default segment duration = %v, want 600s", cfg.SegmentDuration)
	}
	if cfg.TotalDuration != 3600*time.Second {
		t.Fatalf("default total duration = %v, want 3600s", cfg.TotalDuration)
	}
	if cfg.IndexInterval != 100*time.Millisecond {
		t.Fatalf("default index interval = %v, want 100ms", cfg.IndexInterval)
	}
}

func TestLoopRecNormalizeClampsTotalToSegment(t *testing.T) {
	cfg := Config{SegmentDuration: 30 * time.Second, TotalDuration: 5 * time.Second}
	cfg.Normalize("host")
	if cfg.TotalDuration != cfg.SegmentDuration {
		t.Fatalf("total duration %v should clamp up to segment duration %v", cfg.TotalDuration, cfg.SegmentDuration)
	}
}

func TestLoopRecSameExtensionCollisionAvoided(t *testing.T) {
	cfg := Config{DataExt: "dat", IdxExt: "dat"}
	cfg.Normalize("host")
	if cfg.IdxExt == cfg.DataExt {
		t.Fatalf("index extension must differ from data extension, got %q for both", cfg.IdxExt)
	}
}

func TestLoopRecRotationCreatesNewSegmentPastDeadline(t *testing.T) {
	// 10s is the smallest segment duration Normalize allows.
	lr := newTestLoopRec(t, Config{SegmentDuration: 10 * time.Second, TotalDuration: time.Minute})

	t0 := time.Now().UTC()
	lr.write(context.Background(), t0, []byte("a"))
	first := lr.currentSegment

	lr.write(context.Background(), t0.Add(11*time.Second), []byte("b"))
	second := lr.currentSegment

	if second == nil {
		t.Fatal("expected a current segment after the second write")
	}
	if first == second {
		t.Fatal("expected rotation to a new segment once the deadline passed")
	}
}

func TestLoopRecRetentionDropsExpiredSegments(t *testing.T) {
	lr := newTestLoopRec(t, Config{SegmentDuration: time.Second, TotalDuration: time.Second})

	old := time.Now().UTC().Add(-time.Hour)
	lr.write(context.Background(), old, []byte("stale"))
	lr.mu.Lock()
	lr.closeCurrentLocked(context.Background(), false)
	lr.mu.Unlock()

	now := time.Now().UTC()
	lr.removeExpired(context.Background(), now)

	boundary := lr.cfg.TotalDuration + lr.cfg.SegmentDuration
	for _, seg := range lr.order {
		if now.Sub(seg.T0) >= boundary {
			t.Fatalf("segment at %v should have been expired (boundary %v)", seg.T0, boundary)
		}
	}
}

func TestLoopRecIsAcceptableWithinWindow(t *testing.T) {
	lr := newTestLoopRec(t, Config{SegmentDuration: 10 * time.Second, TotalDuration: 60 * time.Second})

	now := time.Now().UTC()
	if _, ok := lr.IsAcceptable("now-30", now); !ok {
		t.Fatal("expected now-30 within a 60s retention window to be acceptable")
	}
	if _, ok := lr.IsAcceptable("now-3600", now); ok {
		t.Fatal("expected now-3600 outside a 60s retention window to be rejected")
	}
	if _, ok := lr.IsAcceptable("garbage", now); ok {
		t.Fatal("expected an unparseable at to be rejected")
	}
}

func TestLoopRecSegmentForAndNextSegment(t *testing.T) {
	lr := newTestLoopRec(t, Config{SegmentDuration: time.Second, TotalDuration: time.Minute})
	base := time.Now().UTC()

	s1 := NewSegment(lr.cfg.Dir, base, false, lr.cfg.DataExt, lr.cfg.IdxExt)
	s2 := NewSegment(lr.cfg.Dir, base.Add(time.Second), true, lr.cfg.DataExt, lr.cfg.IdxExt)
	lr.mu.Lock()
	lr.insertSegment(s1)
	lr.insertSegment(s2)
	lr.mu.Unlock()

	found, ok := lr.SegmentFor(base.Add(500 * time.Millisecond))
	if !ok || found != s1 {
		t.Fatalf("SegmentFor mid-s1 = %v, ok=%v, want s1", found, ok)
	}

	next, ok := lr.NextSegment(s1)
	if !ok || next != s2 {
		t.Fatalf("NextSegment(s1) = %v, ok=%v, want s2", next, ok)
	}
}
