package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// ErrIndexEnd distinguishes "the index has no more records" (not necessarily
// fatal — the data stream may still hold a trailing partial interval) from
// other I/O failures, per spec.md §4.7's "reached index end" flag.
var ErrIndexEnd = errors.New("recorder: reached index end")

const indexRecordSize = 8

// lateWarnThreshold / behindLogThreshold are the 100ms/300ms thresholds of
// spec.md §4.7's paced-read algorithm.
const (
	lateWarnThreshold   = 100 * time.Millisecond
	behindLogThreshold  = 300 * time.Millisecond
)

// SegmentReader reads a segment for paced playback: seeks via the index,
// then delivers packets timed so elapsed wall time ≈ recording time × speed.
// Grounded on original_source/src/looprec.cpp's SegmentReader. Never shared
// across playbacks (spec.md §3).
type SegmentReader struct {
	segment     *Segment
	log         *slog.Logger
	speed       Speed
	idxInterval time.Duration
	order       binary.ByteOrder

	store  ObjectStore
	bucket string
	keyDat string
	keyIdx string
	remote bool

	dataFile *os.File
	idxFile  *os.File

	baseTime time.Time // when recording-position 0 should be "sent"

	k             int64
	posOffset     int64 // pos_k
	nextOffset    int64 // pos_{k+1}
	read          int64 // bytes delivered within the current interval
	posNs         time.Duration
	reachedIdxEnd bool
	remotePos     int64 // next absolute byte offset for remote range reads
}

// NewSegmentReader prepares a reader against segment. baseTime is supplied
// by the playback loop (spec.md §4.8's `base := tick - offset/speed`); store
// is non-nil only when the segment is being read from remote object storage.
func NewSegmentReader(segment *Segment, idxInterval time.Duration, order Endian, speed Speed, baseTime time.Time, store ObjectStore, bucket string, log *slog.Logger) *SegmentReader {
	if log == nil {
		log = slog.Default()
	}
	return &SegmentReader{
		segment:     segment,
		log:         log.With("component", "segment-reader", "segment", segment.stem()),
		speed:       speed,
		idxInterval: idxInterval,
		order:       order.order(),
		store:       store,
		bucket:      bucket,
		baseTime:    baseTime,
	}
}

// BaseTime returns the reference time this reader was initialised with.
func (r *SegmentReader) BaseTime() time.Time { return r.baseTime }

// Initialize seeks to offsetMs within the segment: grounded on
// SegmentReader::Initialize. It branches on whether the segment has been
// pushed to (and should be served from) object storage.
func (r *SegmentReader) Initialize(ctx context.Context, offsetMs int64) error {
	r.k = offsetMs / r.idxInterval.Milliseconds()
	r.posNs = time.Duration(r.k) * r.idxInterval
	r.read = 0
	r.reachedIdxEnd = false

	useRemote := r.store != nil && r.bucket != "" && r.segment.Pushed()
	r.remote = useRemote

	var err error
	if useRemote {
		r.segment.mu.Lock()
		r.keyDat, r.keyIdx = r.segment.s3KeyDat, r.segment.s3KeyIdx
		r.segment.mu.Unlock()
		r.posOffset, r.nextOffset, err = r.readIndexPairRemote(ctx, r.k)
	} else {
		r.segment.Acquire()
		err = r.openLocal()
		if err == nil {
			r.posOffset, r.nextOffset, err = r.readIndexPairLocal(r.k)
		}
		if err == nil {
			_, serr := r.dataFile.Seek(r.posOffset, 0)
			err = serr
		}
	}
	if err != nil {
		if !useRemote {
			r.closeLocal()
			r.segment.Release(r.log)
		}
		return err
	}
	r.remotePos = r.posOffset
	return nil
}

func (r *SegmentReader) openLocal() error {
	df, err := os.Open(r.segment.DataPath())
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	ixf, err := os.Open(r.segment.IndexPath())
	if err != nil {
		df.Close()
		return fmt.Errorf("open index file: %w", err)
	}
	r.dataFile = df
	r.idxFile = ixf
	return nil
}

func (r *SegmentReader) closeLocal() {
	if r.dataFile != nil {
		r.dataFile.Close()
	}
	if r.idxFile != nil {
		r.idxFile.Close()
	}
}

func (r *SegmentReader) readIndexPairLocal(k int64) (pos, next int64, err error) {
	buf := make([]byte, indexRecordSize*2)
	_, err = r.idxFile.ReadAt(buf, k*indexRecordSize)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrIndexEnd, err)
	}
	return int64(r.order.Uint64(buf[:8])), int64(r.order.Uint64(buf[8:])), nil
}

func (r *SegmentReader) readIndexPairRemote(ctx context.Context, k int64) (pos, next int64, err error) {
	data, err := r.store.GetObjectRange(ctx, r.bucket, r.keyIdx, k*indexRecordSize, indexRecordSize*2)
	if err != nil || len(data) < indexRecordSize*2 {
		return 0, 0, fmt.Errorf("%w: %v", ErrIndexEnd, err)
	}
	return int64(r.order.Uint64(data[:8])), int64(r.order.Uint64(data[8:])), nil
}

// advanceInterval advances to the next interval after the current one is
// exhausted: reads index record k+1, rebasing read/posOffset/posNs. On a
// short read it only sets reachedIdxEnd (spec.md §4.7: "not a fatal error").
func (r *SegmentReader) advanceInterval(ctx context.Context) {
	var nextNext int64
	var err error
	if r.remote {
		_, nextNext, err = r.readIndexPairRemote(ctx, r.k+1)
	} else {
		_, nextNext, err = r.readIndexPairLocal(r.k + 1)
	}
	if err != nil {
		r.reachedIdxEnd = true
		return
	}
	r.read -= r.nextOffset - r.posOffset
	r.posOffset = r.nextOffset
	r.nextOffset = nextNext
	r.posNs += r.idxInterval
	r.k++
}

// Read delivers the next chunk of data paced against tick, per spec.md
// §4.7's paced-read algorithm. Returns:
//   - (nil, true, nil)  — reader was ahead of schedule; Read has already
//     slept until it is due, and the caller should retry.
//   - (nil, false, nil) — data stream exhausted (distinct from ErrIndexEnd);
//     caller should move on to the next segment.
//   - (data, false, nil) — a chunk was delivered.
func (r *SegmentReader) Read(ctx context.Context, tick time.Time, buf []byte) ([]byte, bool, error) {
	elapsed := tick.Sub(r.baseTime)
	if elapsed < 0 {
		time.Sleep(-elapsed)
		return nil, true, nil
	}

	n, err := r.readData(ctx, buf)
	if err != nil {
		return nil, false, fmt.Errorf("segment data read: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	intervalBytes := r.nextOffset - r.posOffset
	var referenceNs time.Duration
	if intervalBytes > 0 {
		frac := float64(r.read) / float64(intervalBytes)
		referenceNs = r.speed.Div(r.posNs + time.Duration(frac*float64(r.idxInterval)))
	} else {
		referenceNs = r.speed.Div(r.posNs)
	}

	if referenceNs > elapsed {
		delta := referenceNs - elapsed
		if delta > lateWarnThreshold {
			r.log.Warn("playback sleeping to stay paced", "delta_ms", delta.Milliseconds())
		}
		time.Sleep(delta)
	} else if elapsed-referenceNs > behindLogThreshold {
		r.log.Warn("late to send", "behind_ms", (elapsed - referenceNs).Milliseconds())
	}

	r.read += int64(n)
	for r.posOffset+r.read >= r.nextOffset && !r.reachedIdxEnd {
		r.advanceInterval(ctx)
	}

	return buf[:n], false, nil
}

func (r *SegmentReader) readData(ctx context.Context, buf []byte) (int, error) {
	if r.remote {
		remaining := r.nextOffset - (r.posOffset + r.read)
		want := int64(len(buf))
		if remaining > 0 && remaining < want {
			want = remaining
		}
		if want <= 0 {
			return 0, nil
		}
		data, err := r.store.GetObjectRange(ctx, r.bucket, r.keyDat, r.remotePos, want)
		if err != nil {
			return 0, err
		}
		n := copy(buf, data)
		r.remotePos += int64(n)
		return n, nil
	}
	n, err := r.dataFile.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		return 0, err
	}
	return n, nil
}

// ReachedIndexEnd reports whether the index was exhausted while this reader
// was advancing, which may or may not coincide with actual end of data
// (spec.md §4.7).
func (r *SegmentReader) ReachedIndexEnd() bool { return r.reachedIdxEnd }

// Close releases the reader's local file handles and its shared reference
// on the segment.
func (r *SegmentReader) Close() {
	if !r.remote {
		r.closeLocal()
		r.segment.Release(r.log)
	}
}
