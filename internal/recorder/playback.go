package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/zsiec/reflect/internal/srt"
)

// GapPolicy controls how a playback session reacts to a hole in the
// segment timeline (spec.md §4.8): no segment covers the position it wants
// to read next.
type GapPolicy int

const (
	// GapBreak ends the session the first time a gap is encountered.
	GapBreak GapPolicy = iota
	// GapSkip fast-forwards past the gap to the start of the next segment.
	GapSkip
	// GapWait polls until a segment appears (live recording catching up).
	GapWait
)

// PlaybackOptions configures one session spawned by Play.
type PlaybackOptions struct {
	StartAt  time.Time
	Speed    Speed
	BufSize  int
	Gap      GapPolicy
	Prefetch time.Duration
}

const pollInterval = 100 * time.Millisecond

// Play runs one paced-playback session against sender until it disconnects,
// the requested range is exhausted, or a gap policy terminates it.
// Grounded on spec.md §4.8's pseudocode and
// original_source/src/looprec.cpp's Impl::Play.
func (lr *LoopRec) Play(ctx context.Context, sender *srt.Sender, opts PlaybackOptions, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if opts.BufSize <= 0 {
		opts.BufSize = 1316 * 7
	}
	prefetch := opts.Prefetch
	if prefetch == 0 {
		prefetch = lr.cfg.Prefetch
	}

	base := time.Now()
	tStart := opts.StartAt
	speed := opts.Speed

	var reader *SegmentReader
	var curSeg *Segment
	var prefetched *SegmentReader
	var prefetchCh chan *SegmentReader

	defer func() {
		if reader != nil {
			reader.Close()
		}
	}()

	buf := make([]byte, opts.BufSize)

	for sender.IsConnected() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tick := time.Now()
		at := tStart.Add(speed.Mul(tick.Sub(base)))
		now := time.Now().UTC()

		if reader == nil {
			if speed.IsSlow() && at.Add(lr.cfg.TotalDuration).Before(now) {
				return
			}
			if speed.IsFast() && at.After(now) {
				return
			}

			seg, ok := lr.SegmentFor(at)
			if !ok {
				if opts.Gap == GapBreak {
					return
				}
				time.Sleep(pollInterval)
				continue
			}
			if seg.T0.After(at) {
				gap := seg.T0.Sub(at)
				switch opts.Gap {
				case GapBreak:
					return
				case GapWait:
					if gap > pollInterval {
						gap = pollInterval
					}
					time.Sleep(gap)
					continue
				default: // GapSkip
					base = base.Add(-speed.Div(gap))
					continue
				}
			}

			offset := at.Sub(seg.T0)
			if offset >= lr.cfg.SegmentDuration {
				next, ok := lr.NextSegment(seg)
				if !ok {
					time.Sleep(pollInterval)
					continue
				}
				gap := next.T0.Sub(at)
				if gap <= 0 {
					continue // `at` already falls in next's window; re-resolve via SegmentFor
				}
				switch opts.Gap {
				case GapBreak:
					return
				case GapWait:
					if gap > pollInterval {
						gap = pollInterval
					}
					time.Sleep(gap)
					continue
				default: // GapSkip
					base = base.Add(-speed.Div(gap))
					continue
				}
			}

			readerBase := tick.Add(-speed.Div(offset))
			r := NewSegmentReader(seg, lr.cfg.IndexInterval, lr.cfg.IndexEndian, speed, readerBase, lr.store, lr.cfg.S3Bucket, log)
			if err := r.Initialize(ctx, offset.Milliseconds()); err != nil {
				log.Warn("playback segment initialize failed", "error", err)
				time.Sleep(pollInterval)
				continue
			}
			reader = r
			curSeg = seg
		}

		data, retry, err := reader.Read(ctx, tick, buf)
		if err != nil {
			log.Warn("playback segment read failed, skipping to next segment", "error", err)
			reader.Close()
			reader = nil
			continue
		}
		if retry {
			continue
		}
		if data == nil {
			// Segment exhausted: advance to the next one if continuous,
			// otherwise stop (or wait/poll per gap policy).
			prevBase := reader.BaseTime()
			reader.Close()
			reader = nil

			next, ok := lr.NextSegment(curSeg)
			if !ok || !next.Continuous {
				curSeg = nil
				if opts.Gap == GapBreak {
					return
				}
				continue
			}
			if prefetched != nil {
				reader = prefetched
				prefetched = nil
			} else {
				readerBase := prevBase.Add(speed.Div(lr.cfg.SegmentDuration))
				r := NewSegmentReader(next, lr.cfg.IndexInterval, lr.cfg.IndexEndian, speed, readerBase, lr.store, lr.cfg.S3Bucket, log)
				if err := r.Initialize(ctx, 0); err != nil {
					log.Warn("playback next-segment initialize failed", "error", err)
					curSeg = nil
					continue
				}
				reader = r
			}
			curSeg = next
			continue
		}

		if prefetchCh == nil && curSeg != nil {
			remaining := lr.cfg.SegmentDuration - reader.posNs
			if speed.Div(remaining) <= prefetch {
				if next, ok := lr.NextSegment(curSeg); ok && next.Continuous {
					ch := make(chan *SegmentReader, 1)
					prefetchCh = ch
					go lr.prefetchSegment(ctx, next, speed, reader.BaseTime().Add(speed.Div(lr.cfg.SegmentDuration)), log, ch)
				}
			}
		}
		if prefetchCh != nil {
			select {
			case r := <-prefetchCh:
				prefetched = r
				prefetchCh = nil
			default:
			}
		}

		if len(data) == 0 {
			continue
		}
		softFail, sendErr := sender.Send(data)
		if sendErr != nil {
			return
		}
		if softFail {
			continue
		}
	}
}

func (lr *LoopRec) prefetchSegment(ctx context.Context, seg *Segment, speed Speed, baseTime time.Time, log *slog.Logger, out chan<- *SegmentReader) {
	r := NewSegmentReader(seg, lr.cfg.IndexInterval, lr.cfg.IndexEndian, speed, baseTime, lr.store, lr.cfg.S3Bucket, log)
	if err := r.Initialize(ctx, 0); err != nil {
		log.Warn("prefetch initialize failed", "error", err)
		return
	}
	out <- r
}
