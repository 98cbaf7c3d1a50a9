package recorder

import (
	"os"
	"testing"
	"time"
)

func TestSegmentStemRoundTrip(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	s := NewSegment(t.TempDir(), t0, true, "ts", "idx")
	stem := s.stem()

	gotT0, gotCont, ok := ParseSegmentStem(stem)
	if !ok {
		t.Fatalf("ParseSegmentStem(%q) failed", stem)
	}
	if !gotT0.Equal(t0) {
		t.Fatalf("t0 = %v, want %v", gotT0, t0)
	}
	if !gotCont {
		t.Fatal("expected continuous flag preserved")
	}
}

func TestSegmentStemNonContinuous(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSegment(t.TempDir(), t0, false, "ts", "idx")
	if _, cont, ok := ParseSegmentStem(s.stem()); !ok || cont {
		t.Fatalf("expected non-continuous stem to parse with continuous=false, got cont=%v ok=%v", cont, ok)
	}
}

func TestParseSegmentStemRejectsGarbage(t *testing.T) {
	if _, _, ok := ParseSegmentStem("not-a-timestamp"); ok {
		t.Fatal("expected ParseSegmentStem to reject a non-timestamp stem")
	}
}

func TestSegmentAcquireReleaseDefersDelete(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now()
	s := NewSegment(dir, t0, false, "ts", "idx")
	for _, p := range []string{s.DataPath(), s.IndexPath()} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	s.Acquire()
	s.MarkPushed()
	s.DeleteLocalIfS3Pushed(nil)

	if !s.Pushed() {
		t.Fatal("expected segment to be marked pushed")
	}
	if _, err := os.Stat(s.DataPath()); err != nil {
		t.Fatalf("expected local data file kept while the segment is acquired: %v", err)
	}

	s.Release(nil)
	if _, err := os.Stat(s.DataPath()); !os.IsNotExist(err) {
		t.Fatalf("expected local data file deleted after the last Release, stat err = %v", err)
	}
}
