package mdg

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// TickKind is the meaning of a raw tick.
type TickKind uint8

const (
	TickQuote TickKind = iota + 1
	TickTrade
)

// RawTick is a name-keyed market data input, as produced by text feeds and
// the generator.
type RawTick struct {
	Kind    TickKind
	Symbol  string
	Venue   string
	Side    schema.Side
	Price   int64
	Size    int64
	OrderID uint64
	MatchID uint64
	TsEvent schema.Timeval
	TsRecv  schema.Timeval
}

// Normalizer maps raw ticks to coordinator events.
type Normalizer struct {
	reg    *schema.Registry
	family schema.Family
	clock  func() schema.Timeval
}

// NewNormalizer creates a normalizer tagging events with family.
func NewNormalizer(reg *schema.Registry, family schema.Family) *Normalizer {
	return &Normalizer{reg: reg, family: family, clock: schema.Now}
}

// Normalize converts a raw tick into an event.
func (n *Normalizer) Normalize(seq uint64, tick RawTick) (schema.Event, error) {
	if n.reg == nil {
		return schema.Event{}, errors.Wrap(exception.ErrNilInstance, "registry is nil")
	}
	symbol, ok := n.reg.SymbolIDByName(tick.Symbol)
	if !ok {
		return schema.Event{}, errors.Wrapf(exception.ErrUnknownSymbol, "symbol %s", tick.Symbol)
	}
	venue, ok := n.reg.VenueIDByName(tick.Venue)
	if !ok {
		return schema.Event{}, errors.Wrapf(exception.ErrConfigUnknownVenue, "venue %s", tick.Venue)
	}
	if tick.TsRecv == 0 {
		tick.TsRecv = n.clock()
	}
	if tick.TsEvent == 0 {
		tick.TsEvent = tick.TsRecv
	}

	var (
		kind    schema.Kind
		payload schema.Payload
	)
	switch tick.Kind {
	case TickQuote:
		kind = schema.KindBookChange
		payload = schema.BookChange{
			Symbol:  symbol,
			Side:    tick.Side,
			Size:    schema.Quantity(tick.Size),
			Price:   schema.Price(tick.Price),
			OrderID: tick.OrderID,
		}
	case TickTrade:
		kind = schema.KindExecution
		payload = schema.Execution{
			Symbol:  symbol,
			Side:    tick.Side,
			Size:    schema.Quantity(tick.Size),
			Price:   schema.Price(tick.Price),
			OrderID: tick.OrderID,
			MatchID: tick.MatchID,
		}
	default:
		return schema.Event{}, errors.Wrapf(exception.ErrUnsupportedKind, "tick kind %d", tick.Kind)
	}
	return schema.Event{
		Header:  schema.NewHeader(n.family, kind, venue, seq, tick.TsEvent, tick.TsRecv),
		Payload: payload,
	}, nil
}
