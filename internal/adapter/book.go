// Package adapter holds the read-only views the coordinator consumes from
// market-data collaborators.
package adapter

import "tradecore/internal/schema"

// Book is a read-only view of market depth. Every method returns ok=false
// rather than failing when the symbol or level has no data.
type Book interface {
	BestPrice(symbol schema.SymbolID, side schema.Side, level int) (schema.Price, bool)
	BestSize(symbol schema.SymbolID, side schema.Side, level int) (schema.Quantity, bool)
	Market(symbol schema.SymbolID, side schema.Side, level int) (schema.Price, schema.Quantity, bool)
	// MarketCumSize returns the size resting at price or better.
	MarketCumSize(symbol schema.SymbolID, side schema.Side, price schema.Price) (schema.Quantity, bool)
	MarketOrders(symbol schema.SymbolID, side schema.Side, level int) (int, bool)
}

type topLevel struct {
	price  schema.Price
	size   schema.Quantity
	orders int
	valid  bool
}

// TopOfBook tracks level 0 per symbol and side from book-change updates.
// It is not an order book: a level emptied by deletions stays unknown until
// the next addition.
type TopOfBook struct {
	levels [][2]topLevel
}

// NewTopOfBook sizes the book for symbols 1..symbolCount.
func NewTopOfBook(symbolCount int) *TopOfBook {
	return &TopOfBook{levels: make([][2]topLevel, symbolCount+1)}
}

// Update applies one normalized market-data update. It implements
// dispatch.Listener[schema.DataUpdate].
func (b *TopOfBook) Update(u schema.DataUpdate) {
	if u.Kind != schema.DataBookChange || !u.Side.IsAvailable() {
		return
	}
	lvl := b.level(u.Symbol, u.Side)
	if lvl == nil {
		return
	}
	switch {
	case !lvl.valid || better(u.Side, u.Price, lvl.price):
		if u.Size <= 0 {
			return
		}
		*lvl = topLevel{price: u.Price, size: u.Size, orders: 1, valid: true}
	case u.Price == lvl.price:
		lvl.size += u.Size
		if u.Size > 0 {
			lvl.orders++
		} else if lvl.orders > 0 {
			lvl.orders--
		}
		if lvl.size <= 0 {
			*lvl = topLevel{}
		}
	}
}

func (b *TopOfBook) BestPrice(symbol schema.SymbolID, side schema.Side, level int) (schema.Price, bool) {
	p, _, ok := b.Market(symbol, side, level)
	return p, ok
}

func (b *TopOfBook) BestSize(symbol schema.SymbolID, side schema.Side, level int) (schema.Quantity, bool) {
	_, s, ok := b.Market(symbol, side, level)
	return s, ok
}

func (b *TopOfBook) Market(symbol schema.SymbolID, side schema.Side, level int) (schema.Price, schema.Quantity, bool) {
	if level != 0 {
		return 0, 0, false
	}
	lvl := b.level(symbol, side)
	if lvl == nil || !lvl.valid {
		return 0, 0, false
	}
	return lvl.price, lvl.size, true
}

func (b *TopOfBook) MarketCumSize(symbol schema.SymbolID, side schema.Side, price schema.Price) (schema.Quantity, bool) {
	lvl := b.level(symbol, side)
	if lvl == nil || !lvl.valid {
		return 0, false
	}
	if lvl.price == price || better(side, lvl.price, price) {
		return lvl.size, true
	}
	return 0, true
}

func (b *TopOfBook) MarketOrders(symbol schema.SymbolID, side schema.Side, level int) (int, bool) {
	if level != 0 {
		return 0, false
	}
	lvl := b.level(symbol, side)
	if lvl == nil || !lvl.valid {
		return 0, false
	}
	return lvl.orders, true
}

func (b *TopOfBook) level(symbol schema.SymbolID, side schema.Side) *topLevel {
	if symbol == 0 || int(symbol) >= len(b.levels) {
		return nil
	}
	switch side {
	case schema.SideBuy:
		return &b.levels[symbol][0]
	case schema.SideSell:
		return &b.levels[symbol][1]
	default:
		return nil
	}
}

// better reports whether p is more aggressive than q on side.
func better(side schema.Side, p, q schema.Price) bool {
	if side == schema.SideBuy {
		return p > q
	}
	return p < q
}
