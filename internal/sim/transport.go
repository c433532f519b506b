// Package sim is an in-process venue. It accepts orders through the
// og.Transport contract, matches them against the top of book and returns
// acknowledgements with configurable latency when pumped by the coordinator.
package sim

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/adapter"
	"tradecore/internal/chaos"
	"tradecore/internal/og"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Latency is the delay table of one venue.
type Latency struct {
	// Sequencing is the time from submit until the venue accepts the order.
	Sequencing time.Duration `json:"sequencing"`
	// Live is the extra time after sequencing before the order can trade.
	Live time.Duration `json:"live"`
	// Reply is the time any acknowledgement takes to reach us.
	Reply time.Duration `json:"reply"`
	// Cancel is the time from a cancel request until the venue acts on it.
	Cancel time.Duration `json:"cancel"`
}

// Config controls one simulated venue.
type Config struct {
	Venue   schema.VenueID
	Latency Latency
	// RequireQuote rejects orders for symbols with no quote on either side.
	RequireQuote bool
	Locates      map[schema.SymbolID]int64
	Chaos        chaos.Config
}

// Deps are the collaborators of a Transport. Book and Clock are required;
// Callbacks may be attached later with SetCallbacks.
type Deps struct {
	Book      adapter.Book
	Callbacks og.Callbacks
	Clock     func() schema.Timeval
}

type actionKind uint8

const (
	actConfirm actionKind = iota + 1
	actLive
	actCancel
	actExpire
	ackConfirm
	ackFill
	ackCancel
	ackCancelReject
	ackReject
)

// isAck reports whether the action is an acknowledgement travelling back to
// us rather than work done at the venue.
func (k actionKind) isAck() bool {
	return k >= ackConfirm
}

type action struct {
	kind   actionKind
	at     schema.Timeval
	seq    uint64
	order  *og.TransportOrder
	fill   og.Fill
	reason og.RejectReason
}

type simOrder struct {
	to        *og.TransportOrder
	open      schema.Quantity
	live      bool
	done      bool
	canceling bool
}

type orderKey struct {
	account string
	id      uint32
}

// Transport is a simulated venue session. It is driven from the coordinator
// thread only.
type Transport struct {
	cfg       Config
	book      adapter.Book
	callbacks og.Callbacks
	clock     func() schema.Timeval
	chaos     *chaos.Engine[action]

	available bool
	queue     actionQueue
	seq       uint64
	execID    uint64
	orders    map[orderKey]*simOrder
	resting   []*simOrder
	positions map[schema.SymbolID]int64
}

// New builds a simulated venue.
func New(cfg Config, deps Deps) (*Transport, error) {
	if deps.Book == nil || deps.Clock == nil {
		return nil, fmt.Errorf("sim: book and clock are required: %w", exception.ErrNilInstance)
	}
	var engine *chaos.Engine[action]
	if cfg.Chaos.Enabled() {
		e, err := chaos.NewEngine(cfg.Chaos, func(a action, d time.Duration) action {
			a.at = a.at.Add(d)
			return a
		})
		if err != nil {
			return nil, err
		}
		engine = e
	}
	return &Transport{
		cfg:       cfg,
		book:      deps.Book,
		callbacks: deps.Callbacks,
		clock:     deps.Clock,
		chaos:     engine,
		available: true,
		orders:    make(map[orderKey]*simOrder),
		positions: make(map[schema.SymbolID]int64),
	}, nil
}

// SetCallbacks attaches the receiver of acknowledgements.
func (t *Transport) SetCallbacks(cb og.Callbacks) {
	t.callbacks = cb
}

// SetAvailable simulates a session going up or down.
func (t *Transport) SetAvailable(ok bool) {
	t.available = ok
}

func (t *Transport) Available() bool {
	return t.available
}

func (t *Transport) Submit(o *og.TransportOrder) (bool, og.RejectReason) {
	switch {
	case o == nil:
		return false, og.RejectOther
	case o.Size <= 0:
		return false, og.RejectInvalidSize
	case o.Price <= 0:
		return false, og.RejectInvalidPrice
	}
	key := orderKey{o.Account, o.ID}
	if _, ok := t.orders[key]; ok {
		return false, og.RejectDuplicateID
	}
	so := &simOrder{to: o, open: o.Size}
	t.orders[key] = so
	t.resting = append(t.resting, so)

	now := t.clock()
	sequenced := now.Add(t.cfg.Latency.Sequencing)
	t.schedule(action{kind: actConfirm, at: sequenced, order: o})
	t.schedule(action{kind: actLive, at: sequenced.Add(t.cfg.Latency.Live), order: o})
	return true, og.RejectNone
}

func (t *Transport) Cancel(account string, id uint32) bool {
	so, ok := t.orders[orderKey{account, id}]
	if !ok || so.done {
		return false
	}
	so.canceling = true
	t.schedule(action{kind: actCancel, at: t.clock().Add(t.cfg.Latency.Cancel), order: so.to})
	return true
}

func (t *Transport) CancelAll() {
	for _, so := range t.resting {
		if !so.done && !so.canceling {
			t.Cancel(so.to.Account, so.to.ID)
		}
	}
}

func (t *Transport) Lookup(account string, id uint32, quiet bool) (*og.TransportOrder, bool) {
	so, ok := t.orders[orderKey{account, id}]
	if !ok {
		if !quiet {
			logs.Warnf("sim: order %s/%d not found", account, id)
		}
		return nil, false
	}
	return so.to, true
}

func (t *Transport) Position(symbol schema.SymbolID) int64 {
	return t.positions[symbol]
}

func (t *Transport) Locates(symbol schema.SymbolID) int64 {
	return t.cfg.Locates[symbol]
}

// Open returns the unfilled quantity of a live order.
func (t *Transport) Open(account string, id uint32) (schema.Quantity, bool) {
	so, ok := t.orders[orderKey{account, id}]
	if !ok || so.done {
		return 0, false
	}
	return so.open, true
}

// Pending returns how many actions are scheduled, including held acks.
func (t *Transport) Pending() int {
	return t.queue.Len() + t.chaos.Pending()
}

// NextDue returns when the earliest scheduled action falls due. Acks held
// by chaos are released on the next pump, so they count as due now.
func (t *Transport) NextDue() schema.Timeval {
	if t.queue.Len() > 0 {
		return t.queue[0].at
	}
	if t.chaos.Pending() > 0 {
		return t.clock()
	}
	return schema.NoTime
}

// Pump runs every venue action and delivers every acknowledgement due at or
// before now, in time order. It implements core.Pump.
func (t *Transport) Pump(now schema.Timeval) int {
	delivered := 0
	for t.queue.Len() > 0 && t.queue[0].at <= now {
		a := heap.Pop(&t.queue).(action)
		if a.kind.isAck() {
			t.deliver(a)
			delivered++
			continue
		}
		t.perform(a)
	}
	t.prune()
	if t.queue.Len() == 0 && t.chaos.Pending() > 0 {
		for _, a := range t.chaos.Flush() {
			t.push(a)
		}
	}
	return delivered
}

// Update watches visible trades for passive fills of resting orders. It
// implements dispatch.Listener[schema.DataUpdate].
func (t *Transport) Update(u schema.DataUpdate) {
	if u.Kind != schema.DataVisibleTrade || u.Size <= 0 {
		return
	}
	remaining := u.Size
	for _, so := range t.resting {
		if remaining <= 0 {
			return
		}
		if !so.live || so.done || so.to.Symbol != u.Symbol || !crosses(so.to.Side, so.to.Price, u.Price) {
			continue
		}
		qty := min(so.open, remaining)
		remaining -= qty
		t.execute(so, qty, so.to.Price, og.LiquidityAdded, t.clock())
	}
}

func (t *Transport) perform(a action) {
	so, ok := t.orders[orderKey{a.order.Account, a.order.ID}]
	if !ok {
		return
	}
	switch a.kind {
	case actConfirm:
		if so.done {
			return
		}
		if t.cfg.RequireQuote && !t.quoted(a.order.Symbol) {
			so.done = true
			t.reply(action{kind: ackReject, at: a.at, order: a.order, reason: og.RejectUnknownSymbol})
			return
		}
		t.reply(action{kind: ackConfirm, at: a.at, order: a.order})
	case actLive:
		if so.done {
			return
		}
		so.live = true
		t.takeLiquidity(so, a.at)
		if !so.done && a.order.Timeout > 0 {
			t.schedule(action{kind: actExpire, at: a.at.Add(a.order.Timeout), order: a.order})
		}
	case actCancel:
		if so.done {
			t.reply(action{kind: ackCancelReject, at: a.at, order: a.order})
			return
		}
		t.finish(so, a.at)
	case actExpire:
		if !so.done {
			t.finish(so, a.at)
		}
	}
}

// takeLiquidity fills a marketable order against the opposite top of book.
func (t *Transport) takeLiquidity(so *simOrder, at schema.Timeval) {
	opp := so.to.Side.Opposite()
	price, size, ok := t.book.Market(so.to.Symbol, opp, 0)
	if !ok || size <= 0 || !crosses(so.to.Side, so.to.Price, price) {
		return
	}
	if so.to.RouteFlag == og.RoutePostOnly {
		t.finish(so, at)
		return
	}
	t.execute(so, min(so.open, size), price, og.LiquidityRemoved, at)
}

func (t *Transport) execute(so *simOrder, qty schema.Quantity, price schema.Price, liq og.Liquidity, at schema.Timeval) {
	if qty <= 0 {
		return
	}
	so.open -= qty
	if so.open <= 0 {
		so.done = true
	}
	t.execID++
	t.reply(action{kind: ackFill, at: at, order: so.to, fill: og.Fill{
		Shares:    qty,
		Price:     price,
		Liquidity: liq,
		ExecID:    t.execID,
		Time:      at,
	}})
}

func (t *Transport) finish(so *simOrder, at schema.Timeval) {
	so.done = true
	so.open = 0
	t.reply(action{kind: ackCancel, at: at, order: so.to})
}

// prune drops finished orders from the resting list. They stay known to
// Lookup for late cancels.
func (t *Transport) prune() {
	kept := t.resting[:0]
	for _, so := range t.resting {
		if !so.done {
			kept = append(kept, so)
		}
	}
	clear(t.resting[len(kept):])
	t.resting = kept
}

func (t *Transport) quoted(symbol schema.SymbolID) bool {
	_, bid := t.book.BestPrice(symbol, schema.SideBuy, 0)
	_, ask := t.book.BestPrice(symbol, schema.SideSell, 0)
	return bid || ask
}

func (t *Transport) deliver(a action) {
	if a.kind == ackFill {
		qty := int64(a.fill.Shares)
		if a.order.Side == schema.SideSell {
			qty = -qty
		}
		t.positions[a.order.Symbol] += qty
	}
	if t.callbacks == nil {
		return
	}
	switch a.kind {
	case ackConfirm:
		t.callbacks.OnConfirm(a.order, a.at)
	case ackFill:
		t.callbacks.OnFill(a.order, a.fill)
	case ackCancel:
		t.callbacks.OnCancel(a.order, a.at)
	case ackCancelReject:
		t.callbacks.OnCancelReject(a.order, a.at)
	case ackReject:
		t.callbacks.OnReject(a.order, a.reason, a.at)
	}
}

// reply sends an acknowledgement back over the simulated wire.
func (t *Transport) reply(a action) {
	a.at = a.at.Add(t.cfg.Latency.Reply)
	if a.kind == ackFill {
		a.fill.Time = a.at
	}
	for _, out := range t.chaos.Process(a) {
		t.push(out)
	}
}

func (t *Transport) schedule(a action) {
	t.push(a)
}

func (t *Transport) push(a action) {
	t.seq++
	a.seq = t.seq
	heap.Push(&t.queue, a)
}

func crosses(side schema.Side, limit, price schema.Price) bool {
	switch side {
	case schema.SideBuy:
		return price <= limit
	case schema.SideSell:
		return price >= limit
	default:
		return false
	}
}

type actionQueue []action

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q actionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *actionQueue) Push(x any) { *q = append(*q, x.(action)) }

func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	a := old[n-1]
	*q = old[:n-1]
	return a
}
