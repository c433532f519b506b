// Package seqno issues 32-bit order ids that carry the destination venue.
//
// Layout: bits 26..29 hold the venue code, bits 0..25 a counter. The counter
// tracks the clock (750 ticks per second since local midnight plus a
// configured offset) and never goes backwards: every allocation takes
// max(clock-derived value, previous + increment).
//
// When the counter would leave its 26 bits the allocator refuses to issue
// further ids for the day instead of wrapping.
//
// A persistent store holds a reservation rather than every counter: the
// allocator saves last+Reserve and writes again only once the counter
// passes that mark. A restart resumes above the reservation.
package seqno

import (
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const (
	CounterBits           = 26
	MaxCounter     uint32 = 1<<CounterBits - 1
	VenueMask      uint32 = uint32(schema.MaxVenueID) << CounterBits
	TicksPerSecond        = 750

	// DefaultReserve covers about a minute of clock-driven counters.
	DefaultReserve uint32 = 60 * TicksPerSecond
)

// Encode packs a venue and a counter into an id.
func Encode(venue schema.VenueID, counter uint32) uint32 {
	return uint32(venue)<<CounterBits | counter&MaxCounter
}

// Decode returns the venue encoded in id.
func Decode(id uint32) schema.VenueID {
	return schema.VenueID((id & VenueMask) >> CounterBits)
}

// Counter returns the counter part of id.
func Counter(id uint32) uint32 {
	return id & MaxCounter
}

// Config controls counter seeding.
type Config struct {
	Offset    uint32
	Increment uint32
	Reserve   uint32
	Location  *time.Location
}

// HighWaterStore persists the last counter issued on a given day.
type HighWaterStore interface {
	Load(day string) (uint32, bool, error)
	Save(day string, counter uint32) error
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithClock replaces the wall clock.
func WithClock(clock func() schema.Timeval) Option {
	return func(a *Allocator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithStore persists issued counters so restarts never reuse an id.
func WithStore(store HighWaterStore) Option {
	return func(a *Allocator) {
		a.store = store
	}
}

// Allocator hands out ids. It belongs to the coordinator thread.
type Allocator struct {
	cfg      Config
	clock    func() schema.Timeval
	store    HighWaterStore
	day      string
	last     uint32
	reserved uint32
	issued   uint64
	saves    uint64
}

// New creates an allocator. With a store configured, the counter resumes
// above the high-water mark recorded for today.
func New(cfg Config, opts ...Option) (*Allocator, error) {
	if cfg.Increment == 0 {
		cfg.Increment = 1
	}
	if cfg.Reserve == 0 {
		cfg.Reserve = DefaultReserve
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Offset > MaxCounter {
		return nil, errors.Wrapf(exception.ErrConfigInvalid, "sequence offset %d exceeds %d", cfg.Offset, MaxCounter)
	}
	a := &Allocator{cfg: cfg, clock: schema.Now}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.rollDay(a.clock().Day(cfg.Location)); err != nil {
		return nil, err
	}
	return a, nil
}

// rollDay switches the persisted key to day and floors the counter by the
// mark stored for it.
func (a *Allocator) rollDay(day string) error {
	a.day = day
	a.reserved = 0
	if a.store == nil {
		return nil
	}
	hw, ok, err := a.store.Load(day)
	if err != nil {
		return errors.Wrap(err, "load sequence high-water mark").With("day", day)
	}
	if ok {
		a.last = max(a.last, hw)
		a.reserved = hw
	}
	return nil
}

// Seed returns the clock-derived counter for tv.
func (a *Allocator) Seed(tv schema.Timeval) uint64 {
	return uint64(tv.SecondsSinceMidnight(a.cfg.Location))*TicksPerSecond + uint64(a.cfg.Offset)
}

// Next issues the next id for venue.
func (a *Allocator) Next(venue schema.VenueID) (uint32, error) {
	if venue == 0 || venue > schema.MaxVenueID {
		return 0, errors.Wrapf(exception.ErrSequenceInvalidVenue, "venue %d", venue)
	}
	now := a.clock()
	if day := now.Day(a.cfg.Location); day != a.day {
		if err := a.rollDay(day); err != nil {
			return 0, errors.Wrap(exception.ErrSequenceStore, err.Error())
		}
	}
	counter := a.Seed(now)
	if a.issued > 0 || a.last > 0 {
		if floor := uint64(a.last) + uint64(a.cfg.Increment); floor > counter {
			counter = floor
		}
	}
	if counter > uint64(MaxCounter) {
		return 0, errors.Wrapf(exception.ErrSequenceExhausted, "counter %d", counter)
	}
	if err := a.reserve(uint32(counter)); err != nil {
		return 0, err
	}
	a.last = uint32(counter)
	a.issued++
	return Encode(venue, a.last), nil
}

func (a *Allocator) reserve(counter uint32) error {
	if a.store == nil || counter <= a.reserved {
		return nil
	}
	mark := uint32(min(uint64(counter)+uint64(a.cfg.Reserve), uint64(MaxCounter)))
	if err := a.store.Save(a.day, mark); err != nil {
		return errors.Wrap(exception.ErrSequenceStore, err.Error())
	}
	a.reserved = mark
	a.saves++
	return nil
}

// Last returns the most recently issued counter.
func (a *Allocator) Last() uint32 {
	return a.last
}

// Saves returns how many reservations were written to the store.
func (a *Allocator) Saves() uint64 {
	return a.saves
}

// Issued returns how many ids were handed out.
func (a *Allocator) Issued() uint64 {
	return a.issued
}
