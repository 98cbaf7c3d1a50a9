package recorder

import (
	"context"
	"testing"
	"time"
)

func TestSegmentReaderRoundTripsWrittenData(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now().Add(-time.Minute)
	seg := NewSegment(dir, t0, false, "ts", "idx")

	idxInterval := 100 * time.Millisecond
	w, err := NewSegmentWriter(seg, idxInterval, EndianBig, nil)
	if err != nil {
		t.Fatalf("NewSegmentWriter: %v", err)
	}
	payload := []byte("hello-segment-reader-payload")
	if err := w.Write(0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(idxInterval, nil); err != nil {
		t.Fatalf("Write tick advance: %v", err)
	}
	if err := w.Close(nil, nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	speed := NewSpeed(1.0)
	base := t0 // reading starts immediately, at_base aligned to t0
	r := NewSegmentReader(seg, idxInterval, EndianBig, speed, base, nil, "", nil)
	ctx := context.Background()
	if err := r.Initialize(ctx, 0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer r.Close()

	buf := make([]byte, 4096)
	got, softFail, err := r.Read(ctx, base.Add(time.Hour), buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if softFail {
		t.Fatal("unexpected soft-fail (ahead of schedule) despite a far-future tick")
	}
	if string(got) != string(payload) {
		t.Fatalf("Read returned %q, want %q", got, payload)
	}
}

func TestSegmentReaderAheadOfScheduleSleepsAndRetries(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now()
	seg := NewSegment(dir, t0, false, "ts", "idx")
	idxInterval := 200 * time.Millisecond

	w, err := NewSegmentWriter(seg, idxInterval, EndianBig, nil)
	if err != nil {
		t.Fatalf("NewSegmentWriter: %v", err)
	}
	if err := w.Write(0, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(nil, nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	speed := NewSpeed(1.0)
	base := t0.Add(50 * time.Millisecond) // just ahead: tick is "before" base
	r := NewSegmentReader(seg, idxInterval, EndianBig, speed, base, nil, "", nil)
	ctx := context.Background()
	if err := r.Initialize(ctx, 0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer r.Close()

	buf := make([]byte, 16)
	_, softFail, err := r.Read(ctx, t0, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !softFail {
		t.Fatal("expected soft-fail (ahead of schedule) when tick precedes baseTime")
	}
}
