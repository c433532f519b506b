package recorder

import (
	"context"

	"tradecore/internal/schema"
)

// Source is the pull contract of the coordinator.
type Source interface {
	Next(ctx context.Context, until schema.Timeval) (schema.Event, bool, error)
}

// Tee records every event a source yields before handing it on. Internal
// heartbeats are not recorded; replay synthesizes its own.
type Tee struct {
	src Source
	w   *Writer
}

// NewTee wraps src.
func NewTee(src Source, w *Writer) *Tee {
	return &Tee{src: src, w: w}
}

func (t *Tee) Next(ctx context.Context, until schema.Timeval) (schema.Event, bool, error) {
	ev, drained, err := t.src.Next(ctx, until)
	if err != nil {
		return ev, drained, err
	}
	if ev.Header.Family != schema.FamilyInternal || ev.Header.Kind != schema.KindHeartbeat {
		_ = t.w.Record(ev)
	}
	return ev, drained, nil
}
