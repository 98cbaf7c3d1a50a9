package recorder

import (
	"encoding/binary"
	"os"
	"testing"
	"time"
)

func TestSegmentWriterIndexMonotonicityAndCompleteness(t *testing.T) {
	dir := t.TempDir()
	seg := NewSegment(dir, time.Now(), false, "ts", "idx")

	w, err := NewSegmentWriter(seg, 200*time.Millisecond, EndianBig, nil)
	if err != nil {
		t.Fatalf("NewSegmentWriter: %v", err)
	}

	chunk := make([]byte, 100)
	var tick time.Duration
	for i := 0; i < 10; i++ {
		tick += 50 * time.Millisecond
		if err := w.Write(tick, chunk); err != nil {
			t.Fatalf("Write at tick %v: %v", tick, err)
		}
	}
	if err := w.Close(nil, nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(seg.IndexPath())
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if len(data)%8 != 0 {
		t.Fatalf("index file length %d not a multiple of record size", len(data))
	}
	records := len(data) / 8
	if records < 2 {
		t.Fatalf("expected at least 2 index records, got %d", records)
	}
	if covered := time.Duration(records-1) * 200 * time.Millisecond; covered < tick {
		t.Fatalf("index records cover %v, want at least the %v recorded", covered, tick)
	}

	var prev int64 = -1
	for i := 0; i < records; i++ {
		v := int64(binary.BigEndian.Uint64(data[i*8 : i*8+8]))
		if v < prev {
			t.Fatalf("index record %d = %d is less than previous %d: not monotonic", i, v, prev)
		}
		prev = v
	}

	dataLen := w.DataLen()
	if prev > dataLen {
		t.Fatalf("last index record %d exceeds data length %d", prev, dataLen)
	}
}

func TestSegmentWriterFirstRecordIsZero(t *testing.T) {
	dir := t.TempDir()
	seg := NewSegment(dir, time.Now(), false, "ts", "idx")
	w, err := NewSegmentWriter(seg, time.Second, EndianBig, nil)
	if err != nil {
		t.Fatalf("NewSegmentWriter: %v", err)
	}
	defer w.Close(nil, nil)

	data, err := os.ReadFile(seg.IndexPath())
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if len(data) < 8 {
		t.Fatalf("expected at least one index record immediately after creation, got %d bytes", len(data))
	}
	if v := binary.BigEndian.Uint64(data[:8]); v != 0 {
		t.Fatalf("first index record = %d, want 0", v)
	}
}
