// Package mdg generates a synthetic paper feed for sim sessions.
package mdg

import (
	"math/rand"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// GeneratorConfig shapes the random walk.
type GeneratorConfig struct {
	Seed      int64   `json:"seed"`
	BasePrice int64   `json:"basePrice"`
	Tick      int64   `json:"tick"`
	Spread    int64   `json:"spread"`
	BaseSize  int64   `json:"baseSize"`
	TradeRate float64 `json:"tradeRate"`
}

type quote struct {
	mid      int64
	bid, ask int64
	bidSize  int64
	askSize  int64
	bidID    uint64
	askID    uint64
}

// Generator walks a two-sided quote per symbol and emits the book changes
// that move it, plus occasional trades against the touch.
type Generator struct {
	cfg     GeneratorConfig
	rng     *rand.Rand
	symbols []schema.Symbol
	venues  []string
	quotes  []quote
	index   int
	orderID uint64
	matchID uint64
}

// NewGenerator creates a generator for all symbols in the registry.
func NewGenerator(reg *schema.Registry, cfg GeneratorConfig) (*Generator, error) {
	if reg == nil || reg.SymbolCount() == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "registry has no symbols")
	}
	if cfg.BasePrice <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "base price must be > 0")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 1
	}
	if cfg.Spread <= 0 {
		cfg.Spread = cfg.Tick
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 100
	}
	g := &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	for i := 0; i < reg.SymbolCount(); i++ {
		s, _ := reg.SymbolAt(i)
		g.symbols = append(g.symbols, s)
		g.venues = append(g.venues, reg.VenueName(s.VenueID))
		g.quotes = append(g.quotes, quote{mid: cfg.BasePrice + int64(i)*cfg.Tick})
	}
	return g, nil
}

// Next moves the quote of the next symbol in rotation and returns the ticks
// describing the move, stamped at now.
func (g *Generator) Next(now schema.Timeval) []RawTick {
	i := g.index
	g.index = (g.index + 1) % len(g.symbols)
	q := &g.quotes[i]
	sym, venue := g.symbols[i].Name, g.venues[i]

	var ticks []RawTick
	tick := func(kind TickKind, side schema.Side, price, size int64, orderID, matchID uint64) {
		ticks = append(ticks, RawTick{
			Kind: kind, Symbol: sym, Venue: venue, Side: side,
			Price: price, Size: size, OrderID: orderID, MatchID: matchID,
			TsEvent: now, TsRecv: now,
		})
	}

	if q.bidID != 0 && g.rng.Float64() < g.cfg.TradeRate {
		side, price, size := schema.SideBuy, q.bid, q.bidSize
		if g.rng.Intn(2) == 1 {
			side, price, size = schema.SideSell, q.ask, q.askSize
		}
		g.matchID++
		tick(TickTrade, side, price, 1+g.rng.Int63n(size), 0, g.matchID)
	}

	if q.bidID != 0 {
		tick(TickQuote, schema.SideBuy, q.bid, -q.bidSize, q.bidID, 0)
		tick(TickQuote, schema.SideSell, q.ask, -q.askSize, q.askID, 0)
	}
	q.mid += g.cfg.Tick * int64(g.rng.Intn(3)-1)
	if q.mid <= g.cfg.Spread {
		q.mid = g.cfg.Spread + g.cfg.Tick
	}
	half := g.cfg.Spread / 2
	q.bid, q.ask = q.mid-half, q.mid-half+g.cfg.Spread
	q.bidSize = g.cfg.BaseSize * (1 + g.rng.Int63n(5))
	q.askSize = g.cfg.BaseSize * (1 + g.rng.Int63n(5))
	g.orderID++
	q.bidID = g.orderID
	g.orderID++
	q.askID = g.orderID
	tick(TickQuote, schema.SideBuy, q.bid, q.bidSize, q.bidID, 0)
	tick(TickQuote, schema.SideSell, q.ask, q.askSize, q.askID, 0)
	return ticks
}
