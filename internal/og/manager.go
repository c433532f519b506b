package og

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/adapter"
	"tradecore/internal/alert"
	"tradecore/internal/dispatch"
	"tradecore/internal/obs"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/seqno"
	"tradecore/pkg/exception"
)

// Mode selects where orders are routed.
type Mode uint8

const (
	// ModeNone routes nothing; every placement returns ResultNoRoute.
	ModeNone Mode = iota
	ModeSim
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeSim:
		return "sim"
	case ModeLive:
		return "live"
	default:
		return "unknown"
	}
}

// ParseMode parses "none", "sim" or "live".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "none", "":
		return ModeNone, true
	case "sim":
		return ModeSim, true
	case "live":
		return ModeLive, true
	default:
		return ModeNone, false
	}
}

// FeeRoute substitutes a cheaper venue for orders aimed at another one.
type FeeRoute struct {
	Venue schema.VenueID
	Flag  RouteFlag
}

// Config controls placement routing.
type Config struct {
	Mode        Mode
	ListenOnly  bool
	FeeOptimize bool
	FeeRoutes   map[schema.VenueID]FeeRoute
	Accounts    map[schema.VenueID]string
}

// Deps are the collaborators of a Manager. Registry and Sequence are required.
type Deps struct {
	Registry *schema.Registry
	Sequence *seqno.Allocator
	Risk     *risk.Engine
	Guard    *RejectGuard
	Book     adapter.Book
	Orders   *dispatch.Dispatcher[*Order]
	Alerts   alert.Alerter
	Metrics  *obs.Metrics
	Clock    func() schema.Timeval
}

// PlaceRequest describes one order to place.
type PlaceRequest struct {
	Symbol        schema.SymbolID
	Venue         schema.VenueID
	Side          schema.Side
	Size          schema.Quantity
	Price         schema.Price
	Timeout       time.Duration
	Invisible     bool
	ClientOrderID string
	Marking       risk.Marking
	Algo          Algo
}

// Manager places and cancels orders and turns transport acknowledgements
// into lifecycle updates. It must only be used from the coordinator thread.
type Manager struct {
	cfg      Config
	registry *schema.Registry
	seq      *seqno.Allocator
	risk     *risk.Engine
	guard    *RejectGuard
	book     adapter.Book
	orders   *dispatch.Dispatcher[*Order]
	alerts   alert.Alerter
	metrics  *obs.Metrics
	clock    func() schema.Timeval

	transports [schema.MaxVenueID + 1]Transport
	halted     map[schema.SymbolID]string
	haltAll    string
}

// NewManager validates deps and builds a manager.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Registry == nil || deps.Sequence == nil {
		return nil, fmt.Errorf("og: registry and sequence allocator are required: %w", exception.ErrNilInstance)
	}
	if deps.Clock == nil {
		deps.Clock = schema.Now
	}
	if deps.Alerts == nil {
		deps.Alerts = alert.LogSink{}
	}
	if deps.Guard == nil {
		deps.Guard = NewRejectGuard(-1, BreachAlert, deps.Alerts)
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewEngine(risk.Config{})
	}
	m := &Manager{
		cfg:      cfg,
		registry: deps.Registry,
		seq:      deps.Sequence,
		risk:     deps.Risk,
		guard:    deps.Guard,
		book:     deps.Book,
		orders:   deps.Orders,
		alerts:   deps.Alerts,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		halted:   make(map[schema.SymbolID]string),
	}
	m.guard.SetHaltHook(m.HaltAll)
	return m, nil
}

// AddTransport registers the transport for a venue.
func (m *Manager) AddTransport(venue schema.VenueID, t Transport) error {
	if venue == 0 || venue > schema.MaxVenueID {
		return fmt.Errorf("og: venue %d: %w", venue, exception.ErrOrderUnknownVenue)
	}
	m.transports[venue] = t
	return nil
}

// Transport returns the transport of a venue.
func (m *Manager) Transport(venue schema.VenueID) (Transport, bool) {
	if venue == 0 || venue > schema.MaxVenueID || m.transports[venue] == nil {
		return nil, false
	}
	return m.transports[venue], true
}

// Mode returns the routing mode.
func (m *Manager) Mode() Mode {
	return m.cfg.Mode
}

// Guard returns the reject guard.
func (m *Manager) Guard() *RejectGuard {
	return m.guard
}

// SetHalted halts or resumes trading in one symbol.
func (m *Manager) SetHalted(symbol schema.SymbolID, halted bool, reason string) {
	if !halted {
		delete(m.halted, symbol)
		return
	}
	if reason == "" {
		reason = "halted"
	}
	m.halted[symbol] = reason
}

// Halted reports whether new orders in symbol are refused.
func (m *Manager) Halted(symbol schema.SymbolID) bool {
	if m.haltAll != "" {
		return true
	}
	_, ok := m.halted[symbol]
	return ok
}

// HaltAll refuses every new order until ResumeAll.
func (m *Manager) HaltAll(reason string) {
	if reason == "" {
		reason = "halted"
	}
	m.haltAll = reason
	logs.Errorf("og: all trading halted, reason: %s", reason)
}

// ResumeAll lifts a global halt.
func (m *Manager) ResumeAll() {
	m.haltAll = ""
}

// PlaceOrder routes one order. Only an accepted order produces an Order.
func (m *Manager) PlaceOrder(req PlaceRequest) (OrderResult, *Order) {
	res, o := m.place(req)
	m.metrics.IncResult(uint8(res))
	return res, o
}

func (m *Manager) place(req PlaceRequest) (OrderResult, *Order) {
	if m.cfg.Mode == ModeNone || m.cfg.ListenOnly {
		return ResultNoRoute, nil
	}
	sym, ok := m.registry.Symbol(req.Symbol)
	if !ok {
		return ResultNoRoute, nil
	}

	venue, flag := req.Venue, RouteDefault
	if m.cfg.FeeOptimize {
		if route, ok := m.cfg.FeeRoutes[venue]; ok {
			venue, flag = route.Venue, route.Flag
		}
	}
	if _, ok := m.registry.Venue(venue); !ok {
		return ResultNoRoute, nil
	}
	t, ok := m.Transport(venue)
	if !ok {
		return ResultNoRoute, nil
	}
	if !t.Available() {
		return ResultNoReason, nil
	}
	if m.Halted(req.Symbol) {
		return ResultHalted, nil
	}

	now := m.clock()
	riskReq := risk.Request{Symbol: req.Symbol, Side: req.Side, Size: req.Size, Price: req.Price, Now: now}
	if m.book != nil {
		if ref, ok := m.book.BestPrice(req.Symbol, req.Side.Opposite(), 0); ok {
			riskReq.ReferencePrice = ref
		}
	}
	if reason := m.risk.Evaluate(riskReq); reason != risk.ReasonNone {
		return ResultRiskLimit, nil
	}

	marking, ok := risk.ResolveMarking(risk.ShortCheck{
		Side:           req.Side,
		Size:           req.Size,
		Requested:      req.Marking,
		Position:       t.Position(req.Symbol),
		Locates:        t.Locates(req.Symbol),
		EnforceLocates: m.cfg.Mode == ModeLive,
	})
	if !ok {
		return ResultUnshortable, nil
	}

	id, err := m.seq.Next(venue)
	if err != nil {
		logs.Errorf("og: allocate sequence for venue %d, err: %+v", venue, err)
		if errors.Is(err, exception.ErrSequenceExhausted) {
			m.alerts.Alert(alert.Alert{
				Severity: alert.SeverityCritical,
				Code:     alert.CodeSequenceExhausted,
				Message:  "sequence counter exhausted",
				Symbol:   sym.Name,
				Venue:    m.registry.VenueName(venue),
				Time:     now,
			})
		}
		return ResultNoReason, nil
	}

	to := &TransportOrder{
		Account:       m.cfg.Accounts[venue],
		ID:            id,
		Venue:         venue,
		Symbol:        req.Symbol,
		SymbolName:    sym.Name,
		Side:          req.Side,
		Size:          req.Size,
		Price:         req.Price,
		Timeout:       req.Timeout,
		Invisible:     req.Invisible,
		ClientOrderID: req.ClientOrderID,
		Marking:       marking,
		RouteFlag:     flag,
	}
	if accepted, reason := t.Submit(to); !accepted {
		m.countReject(to, reason, now)
		return MapReject(reason), nil
	}

	o := to.wrapper
	if o == nil {
		o = newOrder(to, req.Algo)
		to.wrapper = o
	}
	o.Algo = req.Algo
	if o.current < 0 {
		o.push(o.next(UpdatePlacing, now))
	}
	m.publish(o)
	return ResultGood, o
}

// CancelOrder requests cancellation of a live order. It returns false when
// the order is unknown, already canceling, or cannot be canceled.
func (m *Manager) CancelOrder(id uint32) bool {
	venue := seqno.Decode(id)
	t, ok := m.Transport(venue)
	if !ok {
		m.alerts.Alert(alert.Alert{
			Severity: alert.SeverityCritical,
			Code:     alert.CodeUnmappedVenue,
			Message:  "cancel for an id whose venue has no transport",
			Venue:    fmt.Sprintf("%d", venue),
			OrderID:  id,
			Time:     m.clock(),
		})
		return false
	}
	to, ok := t.Lookup(m.cfg.Accounts[venue], id, false)
	if !ok {
		return false
	}
	o := to.Order()
	if o == nil {
		m.alerts.Alert(alert.Alert{
			Severity: alert.SeverityCritical,
			Code:     alert.CodeWrapperNotFound,
			Message:  "cancel for a transport order without lifecycle record",
			Symbol:   to.SymbolName,
			Venue:    m.registry.VenueName(venue),
			OrderID:  id,
			Time:     m.clock(),
		})
		return false
	}
	if o.IsDone() || o.CancelPending() || !CanTransition(o.Last().Tag, UpdateCanceling) {
		return false
	}
	if !t.Cancel(to.Account, id) {
		return false
	}
	o.push(o.next(UpdateCanceling, m.clock()))
	m.publish(o)
	return true
}

// CancelAll forwards a mass cancel to every transport.
func (m *Manager) CancelAll() {
	for _, t := range m.transports {
		if t != nil {
			t.CancelAll()
		}
	}
}

// OnConfirm implements Callbacks.
func (m *Manager) OnConfirm(to *TransportOrder, at schema.Timeval) {
	o := m.wrapper(to)
	if m.record(o, o.next(UpdateConfirmed, at)) {
		if p := o.Placing(); p.Happened() && !p.Synthetic {
			m.metrics.ObserveAck(at.Sub(p.Time))
		}
	}
}

// OnFill implements Callbacks.
func (m *Manager) OnFill(to *TransportOrder, fill Fill) {
	o := m.wrapper(to)
	if o.IsDone() && o.current >= 0 && !o.seenExec(fill.ExecID) {
		m.alerts.Alert(alert.Alert{
			Severity: alert.SeverityWarning,
			Code:     alert.CodeLateFill,
			Message:  fmt.Sprintf("fill of %d after order done", fill.Shares),
			Symbol:   to.SymbolName,
			Venue:    m.registry.VenueName(to.Venue),
			OrderID:  to.ID,
			Time:     fill.Time,
		})
	}
	m.record(o, o.fillUpdate(fill.Shares, fill.Price, fill.Liquidity, fill.ExecID, fill.Time))
}

// OnCancel implements Callbacks.
func (m *Manager) OnCancel(to *TransportOrder, at schema.Timeval) {
	o := m.wrapper(to)
	m.record(o, o.cancelUpdate(at))
}

// OnReject implements Callbacks.
func (m *Manager) OnReject(to *TransportOrder, reason RejectReason, at schema.Timeval) {
	o := m.wrapper(to)
	u := o.next(UpdateRejected, at)
	u.Result = MapReject(reason)
	if m.record(o, u) {
		m.countReject(to, reason, at)
	}
}

// OnCancelReject implements Callbacks.
func (m *Manager) OnCancelReject(to *TransportOrder, at schema.Timeval) {
	o := m.wrapper(to)
	m.record(o, o.next(UpdateCxlRejected, at))
}

func (m *Manager) wrapper(to *TransportOrder) *Order {
	if to.wrapper == nil {
		to.wrapper = newOrder(to, AlgoUnknown)
		logs.Warnf("og: order %d on venue %d first seen through a callback", to.ID, to.Venue)
	}
	return to.wrapper
}

func (m *Manager) record(o *Order, u OrderUpdate) bool {
	appended, err := o.apply(u)
	if err != nil {
		if errors.Is(err, exception.ErrOrderStaleUpdate) || errors.Is(err, exception.ErrOrderDuplicateExec) {
			logs.Debugf("og: drop repeated %s for order %d (last %s)", u.Tag, o.ID, o.Last().Tag)
		} else {
			logs.Warnf("og: ignore %s for order %d (last %s), err: %+v", u.Tag, o.ID, o.Last().Tag, err)
		}
		return false
	}
	for _, a := range appended {
		if a.Synthetic {
			logs.Warnf("og: order %d missed %s, synthesized before %s", o.ID, a.Tag, u.Tag)
		}
	}
	m.publish(o)
	return true
}

func (m *Manager) countReject(to *TransportOrder, reason RejectReason, at schema.Timeval) {
	if reason.Benign() {
		return
	}
	m.metrics.IncReject()
	m.guard.Record(RejectInfo{
		Symbol:  to.SymbolName,
		Venue:   m.registry.VenueName(to.Venue),
		OrderID: to.ID,
		Reason:  reason,
		Time:    at,
	})
}

func (m *Manager) publish(o *Order) {
	if m.orders != nil {
		m.orders.Dispatch(o)
	}
}
