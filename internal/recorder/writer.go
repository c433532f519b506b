package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/internal/schema"
)

var (
	ErrQueueFull      = errors.New("recorder: queue full")
	ErrClosed         = errors.New("recorder: writer closed")
	ErrNotStarted     = errors.New("recorder: writer not started")
	ErrAlreadyStarted = errors.New("recorder: writer already started")
)

// Writer appends events to segment files from a bounded queue. Record never
// blocks the caller; the file work happens on the writer goroutine.
type Writer struct {
	cfg Config
	ch  chan record
	wg  sync.WaitGroup
	err atomic.Value

	started atomic.Bool
	closed  atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64

	seg    *segment
	segID  uint64
	header [recordHeaderSize]byte
}

type record struct {
	header  schema.EventHeader
	payload []byte
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// NewWriter creates a writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create recorder dir")
	}
	return &Writer{cfg: cfg, ch: make(chan record, cfg.QueueSize)}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting records, drains the queue and closes the segment.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer loop.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Written returns how many records reached a segment buffer.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Dropped returns how many records were refused.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Record encodes ev and queues it without blocking.
func (w *Writer) Record(ev schema.Event) error {
	payload, err := codec.Encode(nil, ev.Payload)
	if err != nil {
		w.dropped.Add(1)
		return err
	}
	return w.Append(ev.Header, payload)
}

// Append queues an already encoded payload. The writer keeps payload.
func (w *Writer) Append(h schema.EventHeader, payload []byte) error {
	err := w.tryAppend(h, payload)
	if err != nil {
		w.dropped.Add(1)
	}
	return err
}

func (w *Writer) tryAppend(h schema.EventHeader, payload []byte) error {
	switch {
	case w.closed.Load():
		return ErrClosed
	case !w.started.Load():
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if len(payload) > w.cfg.MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if h.Version == 0 {
		h.Version = schema.SchemaVersion
	}
	select {
	case w.ch <- record{header: h, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	defer func() {
		if err := w.closeSegment(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(rec); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if w.seg != nil {
				if err := w.seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		case <-syncC:
			if err := w.syncSegment(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(rec); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(rec record) error {
	now := time.Now().UTC()
	size := int64(recordHeaderSize + len(rec.payload) + recordChecksumSize)
	if w.shouldRotate(now, size) {
		if err := w.closeSegment(); err != nil {
			return err
		}
		if err := w.openSegment(now); err != nil {
			return err
		}
	}

	encodeHeader(w.header[:], rec.header, len(rec.payload))
	var sum [recordChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], checksum(w.header[:], rec.payload))

	for _, part := range [][]byte{w.header[:], rec.payload, sum[:]} {
		if _, err := w.seg.buf.Write(part); err != nil {
			return errors.Wrap(err, "write record")
		}
	}
	w.seg.size += size
	w.written.Add(1)
	return nil
}

func (w *Writer) shouldRotate(now time.Time, next int64) bool {
	if w.seg == nil {
		return true
	}
	if w.seg.size > 0 && w.seg.size+next > w.cfg.SegmentMaxBytes {
		return true
	}
	return w.cfg.SegmentMaxDuration > 0 && now.Sub(w.seg.openedAt) >= w.cfg.SegmentMaxDuration
}

func (w *Writer) syncSegment() error {
	if w.seg == nil {
		return nil
	}
	if err := w.seg.buf.Flush(); err != nil {
		return err
	}
	return w.seg.file.Sync()
}

func (w *Writer) closeSegment() error {
	seg := w.seg
	if seg == nil {
		return nil
	}
	w.seg = nil
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "flush segment")
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "sync segment")
	}
	return seg.file.Close()
}

func (w *Writer) openSegment(now time.Time) error {
	ts := now.Format("20060102-150405")
	for {
		w.segID++
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, w.segID, segmentSuffix)
		file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return errors.Wrap(err, "open segment")
		}
		logs.Infof("recorder: open segment %s", name)
		w.seg = &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}
		return nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	logs.Errorf("recorder: writer stopped, err: %+v", err)
	w.err.Store(err)
}
