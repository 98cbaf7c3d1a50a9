// Package recorder implements the loop-recorder: a time-addressable segment
// store with bounded retention and paced playback, spec.md §4.5-§4.8.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/reflect/internal/option"
	"github.com/zsiec/reflect/internal/srt"
)

// Config is one loopRecs[] entry (spec.md §6), already defaulted/clamped by
// Normalize.
type Config struct {
	Name string
	Dir  string

	DataExt string // default "dat"
	IdxExt  string // default "idx" (or "idx_idx" if equal to DataExt)

	SegmentDuration time.Duration // seconds, min 10, default 600
	TotalDuration   time.Duration // seconds, min = SegmentDuration, default 3600
	IndexInterval   time.Duration // ms, min 1ms, default 100ms
	IndexEndian     Endian
	Prefetch        time.Duration // default 1000ms

	QueueAge      time.Duration // 0 disables the write queue
	QueueLimitMin time.Duration
	QueueLimitMax time.Duration

	S3Bucket string
	S3Folder string
	S3Bufsiz int
}

// Normalize applies the defaults and clamps of spec.md §6, grounded on
// looprec.cpp's Impl::Initialize.
func (c *Config) Normalize(hostname string) {
	if c.DataExt == "" {
		c.DataExt = "dat"
	}
	if c.IdxExt == "" {
		c.IdxExt = "idx"
	}
	if c.IdxExt == c.DataExt {
		c.IdxExt = "idx_idx"
	}
	if c.SegmentDuration < 10*time.Second {
		if c.SegmentDuration == 0 {
			c.SegmentDuration = 600 * time.Second
		} else {
			c.SegmentDuration = 10 * time.Second
		}
	}
	if c.TotalDuration == 0 {
		c.TotalDuration = 3600 * time.Second
	}
	if c.TotalDuration < c.SegmentDuration {
		c.TotalDuration = c.SegmentDuration
	}
	if c.IndexInterval < time.Millisecond {
		if c.IndexInterval == 0 {
			c.IndexInterval = 100 * time.Millisecond
		} else {
			c.IndexInterval = time.Millisecond
		}
	}
	if c.Prefetch == 0 {
		c.Prefetch = 1000 * time.Millisecond
	}
	if c.S3Bucket != "" && c.S3Folder == "" {
		c.S3Folder = hostname
	}
	if c.S3Bufsiz == 0 {
		c.S3Bufsiz = 188 * 100
	}
}

// LoopRec is the per-resource recorder: subscribes to a Receiver as a
// consumer, rotates segments, enforces retention, and spawns paced playback
// sessions. Grounded on original_source/src/looprec.cpp's Impl.
type LoopRec struct {
	cfg   Config
	log   *slog.Logger
	store ObjectStore

	mu              sync.Mutex
	order           []*Segment
	writer          *SegmentWriter
	currentSegment  *Segment
	segmentDeadline time.Time
	continuedFlag   bool

	queue *Queue
}

// New creates a LoopRec, recovering its segment map from the local
// directory (and, if configured, from object storage), then running
// retention immediately, grounded on looprec.cpp's constructor.
func New(ctx context.Context, cfg Config, store ObjectStore, log *slog.Logger) (*LoopRec, error) {
	if log == nil {
		log = slog.Default()
	}
	hostname, _ := os.Hostname()
	cfg.Normalize(hostname)

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create loopRec dir %s: %w", cfg.Dir, err)
	}

	lr := &LoopRec{
		cfg: cfg,
		log: log.With("component", "looprec", "name", cfg.Name),
	}
	if cfg.S3Bucket != "" {
		lr.store = store
	}

	if err := lr.recoverSegments(ctx); err != nil {
		return nil, err
	}
	lr.removeExpired(ctx, time.Now().UTC())

	if cfg.QueueAge > 0 {
		lr.queue = NewQueue()
		go lr.runQueueWorker()
	}
	return lr, nil
}

func (lr *LoopRec) recoverSegments(ctx context.Context) error {
	entries, err := os.ReadDir(lr.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read loopRec dir: %w", err)
	}
	localStems := map[string]bool{}
	suffix := "." + lr.cfg.DataExt
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), suffix)
		t0, continuous, ok := ParseSegmentStem(stem)
		if !ok {
			continue
		}
		seg := NewSegment(lr.cfg.Dir, t0, continuous, lr.cfg.DataExt, lr.cfg.IdxExt)
		if lr.cfg.S3Bucket != "" {
			seg.SetS3(lr.cfg.S3Bucket, lr.cfg.S3Folder)
		}
		lr.insertSegment(seg)
		localStems[stem] = true
	}

	if lr.cfg.S3Bucket == "" || lr.store == nil {
		return nil
	}
	keys, err := lr.store.ListObjects(ctx, lr.cfg.S3Bucket, lr.cfg.S3Folder)
	if err != nil {
		lr.log.Warn("list remote segments failed", "error", err)
		return nil
	}
	seen := map[string]bool{}
	for _, key := range keys {
		base := filepath.Base(key)
		if !strings.HasSuffix(base, suffix) {
			continue
		}
		stem := strings.TrimSuffix(base, suffix)
		if seen[stem] {
			continue
		}
		seen[stem] = true
		if localStems[stem] {
			if seg := lr.segmentForStem(stem); seg != nil {
				seg.MarkPushed()
			}
			continue
		}
		t0, continuous, ok := ParseSegmentStem(stem)
		if !ok {
			continue
		}
		seg := NewSegment(lr.cfg.Dir, t0, continuous, lr.cfg.DataExt, lr.cfg.IdxExt)
		seg.SetS3(lr.cfg.S3Bucket, lr.cfg.S3Folder)
		seg.MarkPushed()
		lr.insertSegment(seg)
	}
	return nil
}

func (lr *LoopRec) segmentForStem(stem string) *Segment {
	for _, s := range lr.order {
		if s.stem() == stem {
			return s
		}
	}
	return nil
}

func (lr *LoopRec) insertSegment(seg *Segment) {
	i := sort.Search(len(lr.order), func(i int) bool { return !lr.order[i].T0.Before(seg.T0) })
	lr.order = append(lr.order, nil)
	copy(lr.order[i+1:], lr.order[i:])
	lr.order[i] = seg
}

// removeExpired marks and deletes every segment older than
// total_duration+segment_duration (spec.md §4.5's grace period, preserved
// per DESIGN.md's Open Question decision), then — matching the original's
// own behavior — runs DeleteLocalIfS3Pushed over every remaining segment.
func (lr *LoopRec) removeExpired(ctx context.Context, now time.Time) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	boundary := lr.cfg.TotalDuration + lr.cfg.SegmentDuration
	kept := lr.order[:0:0]
	for _, seg := range lr.order {
		if now.Sub(seg.T0) >= boundary {
			seg.MarkExpired()
			seg.Destroy(ctx, lr.store, lr.log)
			continue
		}
		kept = append(kept, seg)
	}
	lr.order = kept
	for _, seg := range lr.order {
		seg.DeleteLocalIfS3Pushed(lr.log)
	}
}

// SegmentFor returns the segment containing at (the one with the greatest
// T0 ≤ at), grounded on looprec.cpp's Impl::GetSegment.
func (lr *LoopRec) SegmentFor(at time.Time) (*Segment, bool) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	var found *Segment
	for _, seg := range lr.order {
		if seg.T0.After(at) {
			break
		}
		found = seg
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// NextSegment returns the segment immediately after seg in T0 order.
func (lr *LoopRec) NextSegment(seg *Segment) (*Segment, bool) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	for i, s := range lr.order {
		if s == seg && i+1 < len(lr.order) {
			return lr.order[i+1], true
		}
	}
	return nil, false
}

// IsAcceptable parses `at` and reports whether it falls within
// [now-total_duration, now], grounded on looprec.cpp's Impl::IsAcceptable.
func (lr *LoopRec) IsAcceptable(atStr string, now time.Time) (time.Time, bool) {
	at, ok := GetStartedAt(atStr, now)
	if !ok {
		return time.Time{}, false
	}
	if at.Before(now.Add(-lr.cfg.TotalDuration)) || at.After(now) {
		return at, false
	}
	return at, true
}

// OnReceive implements srt.Consumer: records a packet into the current
// segment, synchronously or via the write queue. Grounded on looprec.cpp's
// subscribed-as-consumer OnReceive.
func (lr *LoopRec) OnReceive(opt *option.Map, data []byte, discrete bool) bool {
	now := time.Now().UTC()
	if lr.queue != nil {
		cp := append([]byte(nil), data...)
		lr.queue.Push(Task{Write: true, Tick: 0, Data: cp, EnqueuedAt: now})
		return true
	}
	lr.write(context.Background(), now, data)
	return true
}

// OnDisconnected implements srt.Consumer: closes the current writer across a
// disconnection (non-continuous next segment). When a write queue is
// running, the close is enqueued as a CloseWriterTask instead of applied
// directly, so it lands after every write already queued ahead of it.
func (lr *LoopRec) OnDisconnected(opt *option.Map) {
	if lr.queue != nil {
		lr.queue.Push(Task{Write: false, EnqueuedAt: time.Now().UTC()})
		return
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.closeCurrentLocked(context.Background(), false)
}

func (lr *LoopRec) write(ctx context.Context, now time.Time, data []byte) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.writer != nil && !now.Before(lr.segmentDeadline) {
		lr.closeCurrentLocked(ctx, true)
	}
	if lr.writer == nil {
		lr.removeExpiredLocked(ctx, now)
		seg := NewSegment(lr.cfg.Dir, now, lr.continuedFlag, lr.cfg.DataExt, lr.cfg.IdxExt)
		if lr.cfg.S3Bucket != "" {
			seg.SetS3(lr.cfg.S3Bucket, lr.cfg.S3Folder)
		}
		w, err := NewSegmentWriter(seg, lr.cfg.IndexInterval, lr.cfg.IndexEndian, lr.log)
		if err != nil {
			lr.log.Error("create segment writer failed", "error", err)
			return
		}
		lr.writer = w
		lr.currentSegment = seg
		lr.insertSegment(seg)
		if lr.continuedFlag {
			lr.segmentDeadline = lr.segmentDeadline.Add(lr.cfg.SegmentDuration)
		} else {
			lr.segmentDeadline = now.Add(lr.cfg.SegmentDuration)
		}
	}

	elapsed := now.Sub(lr.currentSegment.T0)
	if err := lr.writer.Write(elapsed, data); err != nil {
		lr.log.Error("segment write failed", "error", err)
	}
}

// removeExpiredLocked is removeExpired's body, called with lr.mu held.
func (lr *LoopRec) removeExpiredLocked(ctx context.Context, now time.Time) {
	boundary := lr.cfg.TotalDuration + lr.cfg.SegmentDuration
	kept := lr.order[:0:0]
	for _, seg := range lr.order {
		if now.Sub(seg.T0) >= boundary {
			seg.MarkExpired()
			seg.Destroy(ctx, lr.store, lr.log)
			continue
		}
		kept = append(kept, seg)
	}
	lr.order = kept
	for _, seg := range lr.order {
		seg.DeleteLocalIfS3Pushed(lr.log)
	}
}

func (lr *LoopRec) closeCurrentLocked(ctx context.Context, rotated bool) {
	if lr.writer == nil {
		return
	}
	if err := lr.writer.Close(ctx, lr.store); err != nil {
		lr.log.Warn("close segment writer failed", "error", err)
	}
	lr.writer = nil
	lr.currentSegment = nil
	lr.continuedFlag = rotated
}

func (lr *LoopRec) runQueueWorker() {
	for {
		task, ok := lr.queue.Pop()
		if !ok {
			return
		}
		if age, has := lr.queue.OldestAge(time.Now()); has && lr.cfg.QueueAge > 0 && age > lr.cfg.QueueAge {
			lr.log.Warn("write queue overflow, dropping backlog", "age_ms", age.Milliseconds())
			lr.queue.Clear()
			lr.mu.Lock()
			lr.closeCurrentLocked(context.Background(), false)
			lr.mu.Unlock()
			continue
		}
		if task.Write {
			lr.write(context.Background(), task.EnqueuedAt, task.Data)
		} else {
			lr.mu.Lock()
			lr.closeCurrentLocked(context.Background(), false)
			lr.mu.Unlock()
		}
	}
}

// Close shuts down the write-queue worker (if any) and closes the current
// segment writer.
func (lr *LoopRec) Close() {
	lr.mu.Lock()
	lr.closeCurrentLocked(context.Background(), false)
	lr.mu.Unlock()
	if lr.queue != nil {
		lr.queue.Close()
	}
}

var _ srt.Consumer = (*LoopRec)(nil)
