package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// CursorConfig controls replay of recorded segments.
type CursorConfig struct {
	Dir        string `json:"dir"`
	FilePrefix string `json:"filePrefix"`
	// Speed paces replay against the recorded timestamps. Zero replays as
	// fast as the coordinator consumes; 1 is real time.
	Speed           float64 `json:"speed"`
	DisableChecksum bool    `json:"disableChecksum"`
	MaxPayloadSize  int     `json:"maxPayloadSize"`
}

// Validate checks if the config is usable.
func (c CursorConfig) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrConfigInvalid, "replay dir is empty")
	case c.Speed < 0:
		return errors.Wrap(exception.ErrConfigInvalid, "replay speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return errors.Wrap(exception.ErrConfigInvalid, "replay maxPayloadSize must be >= 0")
	}
	return nil
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cursor replays recorded segments in file order as a coordinator source.
// Between recorded events whose gap spans a timer it yields heartbeats
// stamped at the timer, so replayed timers fire at their own instants.
type Cursor struct {
	cfg   CursorConfig
	sleep Sleeper
	files []string

	file   *os.File
	reader *Reader

	peek        *schema.Event
	failed      error
	started     bool
	paced       schema.Timeval
	undecodable uint64
}

// OpenCursor lists the segments under cfg.Dir.
func OpenCursor(cfg CursorConfig) (*Cursor, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "list replay dir")
	}
	c := &Cursor{cfg: cfg, sleep: sleepContext}
	prefix := cfg.FilePrefix + "-"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		c.files = append(c.files, filepath.Join(cfg.Dir, name))
	}
	sort.Strings(c.files)
	logs.Infof("recorder: replay %d segments from %s", len(c.files), cfg.Dir)
	return c, nil
}

// WithSleeper swaps the pacing clock.
func (c *Cursor) WithSleeper(s Sleeper) *Cursor {
	if s != nil {
		c.sleep = s
	}
	return c
}

// Undecodable returns how many records were passed on without a payload.
func (c *Cursor) Undecodable() uint64 {
	return c.undecodable
}

// Close releases the open segment.
func (c *Cursor) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.reader = nil, nil
	return err
}

// Next implements core.Source.
func (c *Cursor) Next(ctx context.Context, until schema.Timeval) (schema.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return schema.Event{}, false, err
	}
	if c.peek == nil {
		if c.failed != nil {
			return schema.Event{}, false, c.failed
		}
		ev, err := c.read()
		if err != nil {
			return schema.Event{}, false, err
		}
		c.peek = &ev
	}

	at := eventTime(c.peek.Header)
	if c.started && !until.IsNone() && at > until {
		if err := c.pace(ctx, until); err != nil {
			return schema.Event{}, false, err
		}
		return heartbeat(until), true, nil
	}
	if err := c.pace(ctx, at); err != nil {
		return schema.Event{}, false, err
	}
	c.started = true

	ev := *c.peek
	c.peek = nil
	next, err := c.read()
	if err != nil {
		c.failed = err
		return ev, true, nil
	}
	c.peek = &next
	return ev, eventTime(next.Header) > at, nil
}

// read returns the next decodable record, crossing segment boundaries.
func (c *Cursor) read() (schema.Event, error) {
	for {
		if c.reader == nil {
			if len(c.files) == 0 {
				return schema.Event{}, io.EOF
			}
			path := c.files[0]
			c.files = c.files[1:]
			f, err := os.Open(path)
			if err != nil {
				return schema.Event{}, errors.Wrap(err, "open segment")
			}
			c.file = f
			c.reader = NewReader(f, ReaderOptions{
				DisableChecksum: c.cfg.DisableChecksum,
				MaxPayloadSize:  c.cfg.MaxPayloadSize,
			})
		}

		h, raw, err := c.reader.Next()
		if err == io.EOF {
			_ = c.Close()
			continue
		}
		if err != nil {
			return schema.Event{}, errors.Wrapf(err, "read %s", c.file.Name())
		}
		p, err := codec.Decode(h.Kind, raw)
		if err != nil {
			c.undecodable++
			logs.Warnf("recorder: seq %d kind %s passed without payload, err: %+v", h.Seq, h.Kind, err)
			p = nil
		}
		return schema.Event{Header: h, Payload: p}, nil
	}
}

func (c *Cursor) pace(ctx context.Context, at schema.Timeval) error {
	if c.cfg.Speed <= 0 {
		return nil
	}
	if c.paced > 0 && at > c.paced {
		if err := c.sleep(ctx, time.Duration(float64(at.Sub(c.paced))/c.cfg.Speed)); err != nil {
			return err
		}
	}
	if at > c.paced {
		c.paced = at
	}
	return nil
}

func heartbeat(at schema.Timeval) schema.Event {
	return schema.Event{
		Header:  schema.NewHeader(schema.FamilyInternal, schema.KindHeartbeat, 0, 0, at, at),
		Payload: schema.Heartbeat{},
	}
}

func eventTime(h schema.EventHeader) schema.Timeval {
	if h.TsRecv > 0 && !h.TsRecv.IsNone() {
		return h.TsRecv
	}
	return h.TsEvent
}
