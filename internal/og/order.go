// Package og owns the order lifecycle: placement, acknowledgement
// correlation, cancel and fill accounting across venues.
package og

import (
	"time"

	"tradecore/internal/risk"
	"tradecore/internal/schema"
)

// Tag is the transition recorded by an OrderUpdate.
type Tag uint8

const (
	// UpdateNone marks a transition that never happened.
	UpdateNone Tag = iota
	UpdatePlacing
	UpdateConfirmed
	UpdateRejected
	UpdateCanceling
	UpdateCanceled
	UpdateCxlRejected
	UpdateFilled
)

func (t Tag) String() string {
	switch t {
	case UpdateNone:
		return "none"
	case UpdatePlacing:
		return "placing"
	case UpdateConfirmed:
		return "confirmed"
	case UpdateRejected:
		return "rejected"
	case UpdateCanceling:
		return "canceling"
	case UpdateCanceled:
		return "canceled"
	case UpdateCxlRejected:
		return "cxl_rejected"
	case UpdateFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// State is the coarse lifecycle state derived from the last update.
type State uint8

const (
	StateNew State = iota
	StateOpen
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpen:
		return "open"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Liquidity tells whether a fill added or removed resting depth.
type Liquidity uint8

const (
	LiquidityUnknown Liquidity = iota
	LiquidityAdded
	LiquidityRemoved
	LiquidityRouted
)

// Algo tags the strategy that owns an order.
type Algo uint16

// AlgoUnknown is assigned to orders first seen through a transport callback.
const AlgoUnknown Algo = 0

// OrderUpdate is an immutable snapshot of one transition.
type OrderUpdate struct {
	Tag       Tag
	Result    OrderResult
	Shares    schema.Quantity
	Filled    schema.Quantity
	Canceled  schema.Quantity
	Liquidity Liquidity
	Price     schema.Price
	Time      schema.Timeval
	ExecID    uint64
	// Synthetic is set on updates inferred from a later acknowledgement.
	Synthetic bool
}

// Happened reports whether the update describes a real transition.
func (u OrderUpdate) Happened() bool {
	return u.Tag != UpdateNone
}

// Order is the lifecycle record of one order on one venue. Size, price and
// symbol never change after creation.
type Order struct {
	ID            uint32
	Venue         schema.VenueID
	Account       string
	Symbol        schema.SymbolID
	Side          schema.Side
	Size          schema.Quantity
	Price         schema.Price
	Timeout       time.Duration
	Invisible     bool
	ClientOrderID string
	Marking       risk.Marking
	Algo          Algo
	RouteFlag     RouteFlag

	updates []OrderUpdate
	current int
	execs   map[uint64]struct{}
}

func newOrder(to *TransportOrder, algo Algo) *Order {
	return &Order{
		ID:            to.ID,
		Venue:         to.Venue,
		Account:       to.Account,
		Symbol:        to.Symbol,
		Side:          to.Side,
		Size:          to.Size,
		Price:         to.Price,
		Timeout:       to.Timeout,
		Invisible:     to.Invisible,
		ClientOrderID: to.ClientOrderID,
		Marking:       to.Marking,
		RouteFlag:     to.RouteFlag,
		Algo:          algo,
		updates:       make([]OrderUpdate, 0, 4),
		current:       -1,
	}
}

// Last returns the most recently written update, or the UpdateNone zero
// value for an order with no history.
func (o *Order) Last() OrderUpdate {
	if o.current < 0 {
		return OrderUpdate{}
	}
	return o.updates[o.current]
}

// Updates returns a copy of the full history, oldest first.
func (o *Order) Updates() []OrderUpdate {
	out := make([]OrderUpdate, len(o.updates))
	copy(out, o.updates)
	return out
}

// Latest returns the newest update carrying tag.
func (o *Order) Latest(tag Tag) OrderUpdate {
	for i := len(o.updates) - 1; i >= 0; i-- {
		if o.updates[i].Tag == tag {
			return o.updates[i]
		}
	}
	return OrderUpdate{}
}

func (o *Order) Placing() OrderUpdate     { return o.Latest(UpdatePlacing) }
func (o *Order) Confirmed() OrderUpdate   { return o.Latest(UpdateConfirmed) }
func (o *Order) Rejected() OrderUpdate    { return o.Latest(UpdateRejected) }
func (o *Order) Canceling() OrderUpdate   { return o.Latest(UpdateCanceling) }
func (o *Order) Canceled() OrderUpdate    { return o.Latest(UpdateCanceled) }
func (o *Order) CxlRejected() OrderUpdate { return o.Latest(UpdateCxlRejected) }
func (o *Order) Filled() OrderUpdate      { return o.Latest(UpdateFilled) }

// OpenShares returns the shares neither filled nor canceled.
func (o *Order) OpenShares() schema.Quantity {
	last := o.Last()
	open := o.Size - last.Filled - last.Canceled
	if open < 0 {
		return 0
	}
	return open
}

// State derives the coarse lifecycle state.
func (o *Order) State() State {
	switch o.Last().Tag {
	case UpdateNone, UpdatePlacing:
		return StateNew
	case UpdateConfirmed, UpdateCanceling, UpdateCxlRejected:
		return StateOpen
	case UpdateFilled:
		if o.OpenShares() > 0 {
			return StateOpen
		}
		return StateDone
	default:
		return StateDone
	}
}

// IsDone reports whether the order can no longer change.
func (o *Order) IsDone() bool {
	return o.State() == StateDone
}

// CancelPending reports whether a cancel request is awaiting its answer.
func (o *Order) CancelPending() bool {
	for i := len(o.updates) - 1; i >= 0; i-- {
		switch o.updates[i].Tag {
		case UpdateCanceling:
			return true
		case UpdateCanceled, UpdateCxlRejected:
			return false
		}
	}
	return false
}

// next builds an update for tag carrying the cumulative figures forward.
func (o *Order) next(tag Tag, at schema.Timeval) OrderUpdate {
	last := o.Last()
	return OrderUpdate{
		Tag:       tag,
		Result:    ResultGood,
		Filled:    last.Filled,
		Canceled:  last.Canceled,
		Liquidity: last.Liquidity,
		Time:      at,
	}
}

func (o *Order) push(u OrderUpdate) {
	last := o.Last()
	if u.Filled < last.Filled {
		u.Filled = last.Filled
	}
	if u.Canceled < last.Canceled {
		u.Canceled = last.Canceled
	}
	if u.Filled > o.Size {
		u.Filled = o.Size
	}
	if u.Filled+u.Canceled > o.Size {
		u.Canceled = o.Size - u.Filled
	}
	o.updates = append(o.updates, u)
	o.current = len(o.updates) - 1
}

func (o *Order) seenExec(id uint64) bool {
	if id == 0 {
		return false
	}
	_, ok := o.execs[id]
	return ok
}

func (o *Order) markExec(id uint64) {
	if id == 0 {
		return
	}
	if o.execs == nil {
		o.execs = make(map[uint64]struct{})
	}
	o.execs[id] = struct{}{}
}
