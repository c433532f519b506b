// Package state keeps per-symbol positions derived from order fills.
package state

import (
	"tradecore/internal/og"
	"tradecore/internal/schema"
)

// Position is the running position of one symbol. Cash is signed: buys
// spend, sells receive, in price units times shares.
type Position struct {
	Qty    schema.Quantity
	Bought schema.Quantity
	Sold   schema.Quantity
	Cash   int64
}

// PositionReducer turns order fill updates into positions. It implements
// dispatch.Listener[*og.Order] and must run on the coordinator thread.
type PositionReducer struct {
	positions map[schema.SymbolID]*Position
	filled    map[uint32]schema.Quantity
	lastAt    schema.Timeval
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{
		positions: make(map[schema.SymbolID]*Position),
		filled:    make(map[uint32]schema.Quantity),
	}
}

// Update applies the fill delta carried by the order's latest update.
func (r *PositionReducer) Update(o *og.Order) {
	last := o.Last()
	if last.Tag != og.UpdateFilled {
		return
	}
	prev := r.filled[o.ID]
	if last.Filled <= prev {
		return
	}
	r.filled[o.ID] = last.Filled
	r.ApplyFill(o.Symbol, o.Side, last.Filled-prev, last.Price)
	if last.Time > r.lastAt {
		r.lastAt = last.Time
	}
}

// ApplyFill updates the position and returns the new quantity.
func (r *PositionReducer) ApplyFill(symbol schema.SymbolID, side schema.Side, qty schema.Quantity, price schema.Price) schema.Quantity {
	p := r.position(symbol)
	notional := int64(qty) * int64(price)
	switch side {
	case schema.SideBuy:
		p.Qty += qty
		p.Bought += qty
		p.Cash -= notional
	case schema.SideSell:
		p.Qty -= qty
		p.Sold += qty
		p.Cash += notional
	}
	return p.Qty
}

// ApplySnapshot replaces positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	clear(r.positions)
	for _, e := range snapshot.Positions {
		r.positions[e.Symbol] = &Position{Qty: e.Qty, Bought: e.Bought, Sold: e.Sold, Cash: e.Cash}
	}
	r.lastAt = snapshot.LastFill
}

// Position returns the current position of a symbol.
func (r *PositionReducer) Position(symbol schema.SymbolID) Position {
	if p, ok := r.positions[symbol]; ok {
		return *p
	}
	return Position{}
}

// Count returns the number of tracked symbols.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}

func (r *PositionReducer) position(symbol schema.SymbolID) *Position {
	p, ok := r.positions[symbol]
	if !ok {
		p = &Position{}
		r.positions[symbol] = p
	}
	return p
}
