package og

import (
	"time"

	"tradecore/internal/risk"
	"tradecore/internal/schema"
)

// RouteFlag asks the venue to handle an order in a non-default way.
type RouteFlag uint8

const (
	RouteDefault RouteFlag = iota
	RoutePostOnly
	RouteMidpoint
	RouteRetail
)

// TransportOrder is the transport's own record of an order. The transport
// keeps the (account, id) mapping; the lifecycle Order is attached to it
// lazily and exactly once.
type TransportOrder struct {
	Account       string
	ID            uint32
	Venue         schema.VenueID
	Symbol        schema.SymbolID
	SymbolName    string
	Side          schema.Side
	Size          schema.Quantity
	Price         schema.Price
	Timeout       time.Duration
	Invisible     bool
	ClientOrderID string
	Marking       risk.Marking
	RouteFlag     RouteFlag

	wrapper *Order
}

// Order returns the attached lifecycle record, or nil.
func (t *TransportOrder) Order() *Order {
	return t.wrapper
}

// Transport sends orders to one venue. Calls are synchronous from the
// coordinator's point of view; acknowledgements come back later through
// Callbacks.
type Transport interface {
	// Available reports whether the session can accept orders now.
	Available() bool
	// Submit hands the order to the venue. On false, reason says why.
	Submit(o *TransportOrder) (bool, RejectReason)
	Cancel(account string, id uint32) bool
	CancelAll()
	// Lookup finds a live order. quiet suppresses the missing-order warning.
	Lookup(account string, id uint32, quiet bool) (*TransportOrder, bool)
	Position(symbol schema.SymbolID) int64
	Locates(symbol schema.SymbolID) int64
}

// Fill describes one execution reported by a transport.
type Fill struct {
	Shares    schema.Quantity
	Price     schema.Price
	Liquidity Liquidity
	ExecID    uint64
	Time      schema.Timeval
}

// Callbacks receive acknowledgements from transports, in the order each
// transport produced them.
type Callbacks interface {
	OnConfirm(o *TransportOrder, at schema.Timeval)
	OnFill(o *TransportOrder, fill Fill)
	OnCancel(o *TransportOrder, at schema.Timeval)
	OnReject(o *TransportOrder, reason RejectReason, at schema.Timeval)
	OnCancelReject(o *TransportOrder, at schema.Timeval)
}
