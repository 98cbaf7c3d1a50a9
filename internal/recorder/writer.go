package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Endian selects the byte order used for index records, configured via
// index_endian (spec.md §6): native, big, or little.
type Endian int

const (
	EndianNative Endian = iota
	EndianBig
	EndianLittle
)

func (e Endian) order() binary.ByteOrder {
	switch e {
	case EndianBig:
		return binary.BigEndian
	case EndianLittle:
		return binary.LittleEndian
	default:
		return binary.NativeEndian
	}
}

// SegmentWriter appends packets to a segment's data file and, at fixed
// wall-clock ticks, appends the data file's byte offset to the index file.
// Grounded on original_source/src/looprec.cpp's SegmentWriter.
type SegmentWriter struct {
	segment *Segment
	log     *slog.Logger

	order       binary.ByteOrder
	idxInterval time.Duration

	mu       sync.Mutex
	dataFile *os.File
	idxFile  *os.File
	dataBuf  *bufio.Writer
	idxBuf   *bufio.Writer
	dataPos  int64
	nextTick time.Duration // next index-record deadline, recording-relative
}

// NewSegmentWriter creates and opens (truncating) the data and index files
// for segment. Grounded on SegmentWriter::Initialize: the first index record
// (byte position 0) is written before any data.
func NewSegmentWriter(segment *Segment, idxInterval time.Duration, order Endian, log *slog.Logger) (*SegmentWriter, error) {
	if log == nil {
		log = slog.Default()
	}
	df, err := os.Create(segment.DataPath())
	if err != nil {
		return nil, fmt.Errorf("create data file %s: %w", segment.DataPath(), err)
	}
	ixf, err := os.Create(segment.IndexPath())
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("create index file %s: %w", segment.IndexPath(), err)
	}

	w := &SegmentWriter{
		segment:     segment,
		log:         log.With("component", "segment-writer", "segment", segment.stem()),
		order:       order.order(),
		idxInterval: idxInterval,
		dataFile:    df,
		idxFile:     ixf,
		dataBuf:     bufio.NewWriter(df),
		idxBuf:      bufio.NewWriter(ixf),
	}
	if err := w.writeIndexRecord(); err != nil {
		df.Close()
		ixf.Close()
		return nil, err
	}
	w.nextTick = idxInterval
	w.log.Info("segment created")
	return w, nil
}

func (w *SegmentWriter) writeIndexRecord() error {
	var b [8]byte
	w.order.PutUint64(b[:], uint64(w.dataPos))
	_, err := w.idxBuf.Write(b[:])
	return err
}

// Write appends bytes to the data file, then catches the index up to tick:
// while tick has crossed one or more idx_interval boundaries, append the
// current data-file position and advance the deadline. Grounded on
// SegmentWriter::Write.
func (w *SegmentWriter) Write(tick time.Duration, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.dataBuf.Write(data)
	w.dataPos += int64(n)
	if err != nil {
		return fmt.Errorf("segment data write: %w", err)
	}

	wroteIndex := false
	for tick >= w.nextTick {
		if err := w.writeIndexRecord(); err != nil {
			return fmt.Errorf("segment index write: %w", err)
		}
		w.nextTick += w.idxInterval
		wroteIndex = true
	}
	if wroteIndex {
		if err := w.dataBuf.Flush(); err != nil {
			return fmt.Errorf("flush data file: %w", err)
		}
		if err := w.idxBuf.Flush(); err != nil {
			return fmt.Errorf("flush index file: %w", err)
		}
	}
	return nil
}

// Close appends a final index record holding the end-of-data offset, then
// flushes and closes both files. If store is non-nil and the segment
// has S3 configured, an asynchronous push is started on a new goroutine;
// the caller does not wait for it (grounded on SegmentWriter::Close
// enqueuing the push rather than blocking on it).
func (w *SegmentWriter) Close(ctx context.Context, store ObjectStore) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeIndexRecord(); err != nil {
		w.log.Warn("write final index record on close failed", "error", err)
	}
	if err := w.dataBuf.Flush(); err != nil {
		w.log.Warn("flush data file on close failed", "error", err)
	}
	if err := w.idxBuf.Flush(); err != nil {
		w.log.Warn("flush index file on close failed", "error", err)
	}
	dataErr := w.dataFile.Close()
	idxErr := w.idxFile.Close()

	if store != nil {
		go w.segment.S3Push(ctx, store, w.log)
	}

	if dataErr != nil {
		return dataErr
	}
	return idxErr
}

// DataLen returns the current data-file byte length.
func (w *SegmentWriter) DataLen() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataPos
}
