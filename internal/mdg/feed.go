package mdg

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

// Publisher accepts events without blocking.
type Publisher interface {
	TryPublish(ev schema.Event) error
}

// Feed publishes generated ticks at a fixed interval.
type Feed struct {
	gen      *Generator
	norm     *Normalizer
	out      Publisher
	interval time.Duration
	seq      uint64
	dropped  uint64
}

// NewFeed wires a generator to a publisher.
func NewFeed(gen *Generator, norm *Normalizer, out Publisher, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Feed{gen: gen, norm: norm, out: out, interval: interval}
}

// Dropped returns how many events the publisher refused.
func (f *Feed) Dropped() uint64 {
	return f.dropped
}

// Step generates one move and publishes it. It returns how many events were
// accepted.
func (f *Feed) Step(now schema.Timeval) int {
	sent := 0
	for _, tick := range f.gen.Next(now) {
		f.seq++
		ev, err := f.norm.Normalize(f.seq, tick)
		if err != nil {
			logs.Warnf("mdg: normalize %s, err: %+v", tick.Symbol, err)
			continue
		}
		if err := f.out.TryPublish(ev); err != nil {
			f.dropped++
			if f.dropped == 1 || f.dropped%1000 == 0 {
				logs.Warnf("mdg: %d events dropped, err: %+v", f.dropped, err)
			}
			continue
		}
		sent++
	}
	return sent
}

// Run steps the feed until ctx ends.
func (f *Feed) Run(ctx context.Context) error {
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			f.Step(schema.FromTime(now))
		}
	}
}
