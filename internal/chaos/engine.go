package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"tradecore/pkg/exception"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64         `json:"seed"`
	DropRate      float64       `json:"dropRate"`
	DuplicateRate float64       `json:"duplicateRate"`
	ReorderWindow int           `json:"reorderWindow"`
	MaxDelay      time.Duration `json:"maxDelay"`
}

// Enabled reports whether any rule is active.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("chaos: dropRate must be between 0 and 1: %w", exception.ErrConfigInvalid)
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("chaos: duplicateRate must be between 0 and 1: %w", exception.ErrConfigInvalid)
	}
	if c.ReorderWindow < 0 {
		return fmt.Errorf("chaos: reorderWindow must be >= 0: %w", exception.ErrConfigInvalid)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("chaos: maxDelay must be >= 0: %w", exception.ErrConfigInvalid)
	}
	return nil
}

// Engine applies chaos rules to a stream of items. It is not safe for
// concurrent use.
type Engine[T any] struct {
	cfg     Config
	rng     *rand.Rand
	pending []T
	delay   func(T, time.Duration) T
}

// NewEngine creates a chaos engine. delay shifts an item by the drawn
// delay; it may be nil when MaxDelay is zero.
func NewEngine[T any](cfg Config, delay func(T, time.Duration) T) (*Engine[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine[T]{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		delay: delay,
	}, nil
}

// Process applies chaos to a single item and returns any output items.
func (e *Engine[T]) Process(v T) []T {
	if e == nil {
		return []T{v}
	}
	if e.shouldDrop() {
		return nil
	}
	v = e.applyDelay(v)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(v)
	}
	e.pending = append(e.pending, v)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.applyDuplicate(out)
}

// Pending returns how many items are held for reordering.
func (e *Engine[T]) Pending() int {
	if e == nil {
		return 0
	}
	return len(e.pending)
}

// Flush returns every held item in random order.
func (e *Engine[T]) Flush() []T {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]T, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		v := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.applyDuplicate(v)...)
	}
	return out
}

func (e *Engine[T]) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine[T]) applyDuplicate(v T) []T {
	out := []T{v}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, v)
	}
	return out
}

func (e *Engine[T]) applyDelay(v T) T {
	if e.cfg.MaxDelay <= 0 || e.delay == nil {
		return v
	}
	delay := time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	if delay == 0 {
		return v
	}
	return e.delay(v, delay)
}
