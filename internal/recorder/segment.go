package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// isoCompact is the filename stem timestamp layout
// ("YYYYMMDDTHHMMSS[.ffffff]"), grounded on
// original_source/src/looprec.cpp's use of
// boost::posix_time::from_iso_string/to_iso_string for segment filenames.
const isoCompact = "20060102T150405.000000"

// Segment is the unit of recorded storage (spec.md §3): a UTC capture start
// timestamp, a continuous-chain flag, and a data/index path pair that may
// live locally, remotely, or both. Grounded on
// original_source/src/looprec.cpp's Segment class.
type Segment struct {
	T0         time.Time
	Continuous bool

	dataExt string
	idxExt  string

	mu         sync.Mutex
	localDir   string
	s3Bucket   string
	s3KeyDat   string
	s3KeyIdx   string
	pushed     bool
	expired    bool
	refCount   int
	deleteWhen int // deferred-delete request once refCount reaches 0
}

// NewSegment creates a Segment rooted at dir for capture start t0, with the
// given extensions. continuous controls the "=" filename suffix.
func NewSegment(dir string, t0 time.Time, continuous bool, dataExt, idxExt string) *Segment {
	return &Segment{
		T0:         t0,
		Continuous: continuous,
		dataExt:    dataExt,
		idxExt:     idxExt,
		localDir:   dir,
	}
}

// stem is the filename without extension, e.g. "20240102T030405.000000Z=".
func (s *Segment) stem() string {
	suffix := ""
	if s.Continuous {
		suffix = "="
	}
	return s.T0.UTC().Format(isoCompact) + "Z" + suffix
}

// DataPath/IndexPath are the local file paths for this segment.
func (s *Segment) DataPath() string { return filepath.Join(s.localDir, s.stem()+"."+s.dataExt) }
func (s *Segment) IndexPath() string { return filepath.Join(s.localDir, s.stem()+"."+s.idxExt) }

// ParseSegmentStem parses a filename stem (without extension) into (t0,
// continuous), grounded on looprec.cpp's constructor enumeration of
// existing files. ok is false if stem is not a recognised timestamp.
func ParseSegmentStem(stem string) (t0 time.Time, continuous bool, ok bool) {
	continuous = strings.HasSuffix(stem, "=")
	trimmed := strings.TrimSuffix(stem, "=")
	trimmed = strings.TrimSuffix(trimmed, "Z")
	t, err := time.ParseInLocation("20060102T150405.000000", trimmed, time.UTC)
	if err != nil {
		t, err = time.ParseInLocation("20060102T150405", trimmed, time.UTC)
		if err != nil {
			return time.Time{}, false, false
		}
	}
	return t, continuous, true
}

// SetS3 records the bucket/folder this segment pushes to (or was recovered
// from) without marking it pushed.
func (s *Segment) SetS3(bucket, folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s3Bucket = bucket
	s.s3KeyDat = strings.TrimSuffix(folder+"/"+s.stem(), "/") + "." + s.dataExt
	s.s3KeyIdx = strings.TrimSuffix(folder+"/"+s.stem(), "/") + "." + s.idxExt
}

// MarkPushed records that both the index and data objects exist remotely,
// either after a successful S3Push or when recovered from a startup object
// listing (SPEC_FULL.md §C.6).
func (s *Segment) MarkPushed() {
	s.mu.Lock()
	s.pushed = true
	s.mu.Unlock()
}

// Pushed reports whether both objects are known to exist remotely.
func (s *Segment) Pushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// MarkExpired flags the segment as past its retention window (spec.md §4.5).
func (s *Segment) MarkExpired() {
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
}

// Expired reports the flag set by MarkExpired.
func (s *Segment) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Acquire/Release implement the shared-ownership deferral of spec.md §3:
// "deletion is deferred until the last reader releases". SegmentReader
// calls Acquire when Initialize opens the local files and Release when it
// closes them.
func (s *Segment) Acquire() {
	s.mu.Lock()
	s.refCount++
	s.mu.Unlock()
}

func (s *Segment) Release(log *slog.Logger) {
	s.mu.Lock()
	s.refCount--
	shouldDelete := s.refCount <= 0 && s.deleteWhen > 0
	s.deleteWhen = 0
	s.mu.Unlock()
	if shouldDelete {
		s.deleteLocal(log)
	}
}

// S3Push uploads the index and data files concurrently; the segment is
// marked pushed only if both succeed, grounded on looprec.cpp's
// SegmentWriter::Close / Segment::S3Push ("only on both succeeding mark the
// segment as pushed").
func (s *Segment) S3Push(ctx context.Context, store ObjectStore, log *slog.Logger) {
	s.mu.Lock()
	bucket, keyDat, keyIdx := s.s3Bucket, s.s3KeyDat, s.s3KeyIdx
	s.mu.Unlock()
	if bucket == "" {
		return
	}

	var datErr, idxErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		datErr = store.PutObject(ctx, bucket, keyDat, s.DataPath())
	}()
	go func() {
		defer wg.Done()
		idxErr = store.PutObject(ctx, bucket, keyIdx, s.IndexPath())
	}()
	wg.Wait()

	if datErr != nil || idxErr != nil {
		log.Warn("segment s3 push failed", "segment", s.stem(), "data_error", datErr, "index_error", idxErr)
		return
	}
	s.MarkPushed()
	log.Debug("segment pushed to s3", "segment", s.stem(), "bucket", bucket)
	s.DeleteLocalIfS3Pushed(log)
}

// DeleteLocalIfS3Pushed deletes the local files once the remote copy is
// confirmed, independent of retention — grounded on looprec.cpp calling it
// both right after a successful push and unconditionally over every
// remaining segment on each retention pass (see DESIGN.md's Open Question on
// RemoveExpiredSegments semantics).
func (s *Segment) DeleteLocalIfS3Pushed(log *slog.Logger) {
	if !s.Pushed() {
		return
	}
	s.mu.Lock()
	if s.refCount > 0 {
		s.deleteWhen = 1
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.deleteLocal(log)
}

func (s *Segment) deleteLocal(log *slog.Logger) {
	for _, p := range []string{s.DataPath(), s.IndexPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn("delete local segment file failed", "path", p, "error", err)
		}
	}
}

// S3Delete removes the segment's remote objects, used when an expired
// segment's retention boundary is crossed entirely (spec.md §4.5's
// retention, both local and remote deletion).
func (s *Segment) S3Delete(ctx context.Context, store ObjectStore, log *slog.Logger) {
	s.mu.Lock()
	bucket, keyDat, keyIdx, pushed := s.s3Bucket, s.s3KeyDat, s.s3KeyIdx, s.pushed
	s.mu.Unlock()
	if bucket == "" || !pushed {
		return
	}
	if err := store.DeleteObject(ctx, bucket, keyDat); err != nil {
		log.Warn("s3 delete data failed", "key", keyDat, "error", err)
	}
	if err := store.DeleteObject(ctx, bucket, keyIdx); err != nil {
		log.Warn("s3 delete index failed", "key", keyIdx, "error", err)
	}
}

// Destroy deletes the local files and, if store is non-nil, the remote
// objects, but only once the segment has been marked expired (grounded on
// looprec.cpp's Segment::Destroy "only deletes if expired"). While a reader
// still holds the segment, the local deletion waits for the last Release.
func (s *Segment) Destroy(ctx context.Context, store ObjectStore, log *slog.Logger) {
	if !s.Expired() {
		return
	}
	s.mu.Lock()
	if s.refCount > 0 {
		s.deleteWhen = 1
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		s.deleteLocal(log)
	}
	if store != nil {
		s.S3Delete(ctx, store, log)
	}
}

func (s *Segment) String() string {
	return fmt.Sprintf("Segment{t0=%s continuous=%v}", s.T0.Format(time.RFC3339), s.Continuous)
}
