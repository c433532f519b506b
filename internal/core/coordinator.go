package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/dispatch"
	"tradecore/internal/obs"
	"tradecore/internal/og"
	"tradecore/internal/schema"
	"tradecore/internal/timer"
	"tradecore/pkg/exception"
)

// AdminChannel is the user-message channel carrying halt and resume commands.
const AdminChannel uint16 = 0

// Wakeup is raised once per iteration when the source reports that its
// immediate backlog is drained. Deferred work belongs here.
type Wakeup struct {
	At        schema.Timeval
	Iteration uint64
}

// Dispatchers holds one dispatcher per published update kind.
type Dispatchers struct {
	Market      *dispatch.Dispatcher[schema.DataUpdate]
	Order       *dispatch.Dispatcher[*og.Order]
	Tape        *dispatch.Dispatcher[schema.TapeUpdate]
	Time        *dispatch.Dispatcher[timer.TimeUpdate]
	UserMessage *dispatch.Dispatcher[schema.UserMessage]
	Wakeup      *dispatch.Dispatcher[Wakeup]
}

// NewDispatchers creates an empty dispatcher for every kind.
func NewDispatchers() *Dispatchers {
	return &Dispatchers{
		Market:      dispatch.New[schema.DataUpdate]("market"),
		Order:       dispatch.New[*og.Order]("order"),
		Tape:        dispatch.New[schema.TapeUpdate]("tape"),
		Time:        dispatch.New[timer.TimeUpdate]("time"),
		UserMessage: dispatch.New[schema.UserMessage]("user_message"),
		Wakeup:      dispatch.New[Wakeup]("wakeup"),
	}
}

// Pump delivers work that fell due at or before now, such as simulated
// acknowledgements. It returns how many items were delivered. NextDue
// returns the time of the earliest pending item or schema.NoTime.
type Pump interface {
	Pump(now schema.Timeval) int
	NextDue() schema.Timeval
}

// HaltTable receives coalesced per-symbol trading state.
type HaltTable interface {
	SetHalted(symbol schema.SymbolID, halted bool, reason string)
}

// Source yields tagged events. Next blocks until an event is available,
// until has passed, or ctx ends. When until passes with nothing to read it
// returns a heartbeat stamped at until. drained reports that no further
// event is immediately available. io.EOF ends the run with StopComplete.
type Source interface {
	Next(ctx context.Context, until schema.Timeval) (ev schema.Event, drained bool, err error)
}

// StopRequest is a pending request to end the run.
type StopRequest struct {
	Status schema.StopStatus
	Reason string
}

// RunResult is what Run returns once the loop ends.
type RunResult struct {
	Status     schema.StopStatus
	Reason     string
	Iterations uint64
	Dropped    uint64
}

// Deps are the collaborators of a Coordinator. Registry, Dispatchers and
// Scheduler are required; the scheduler must publish through
// Dispatchers.Time.
type Deps struct {
	Registry    *schema.Registry
	Dispatchers *Dispatchers
	Scheduler   *timer.Scheduler
	Halts       HaltTable
	Pumps       []Pump
	Metrics     *obs.Metrics
}

type adminState struct {
	halted bool
	reason string
}

// Coordinator multiplexes every inbound stream onto one thread. None of its
// methods are safe for concurrent use.
type Coordinator struct {
	registry *schema.Registry
	d        *Dispatchers
	sched    *timer.Scheduler
	halts    HaltTable
	pumps    []Pump
	metrics  *obs.Metrics
	handlers map[classKey]handler

	started    bool
	now        schema.Timeval
	iterations uint64
	dropped    uint64
	stop       *StopRequest

	admin      map[schema.SymbolID]adminState
	adminOrder []schema.SymbolID
}

// New validates deps and builds a coordinator.
func New(deps Deps) (*Coordinator, error) {
	if deps.Registry == nil || deps.Dispatchers == nil || deps.Scheduler == nil {
		return nil, fmt.Errorf("core: registry, dispatchers and scheduler are required: %w", exception.ErrNilInstance)
	}
	c := &Coordinator{
		registry: deps.Registry,
		d:        deps.Dispatchers,
		sched:    deps.Scheduler,
		halts:    deps.Halts,
		pumps:    deps.Pumps,
		metrics:  deps.Metrics,
		admin:    make(map[schema.SymbolID]adminState),
	}
	c.handlers = c.classificationTable()
	return c, nil
}

// Dispatchers returns the coordinator's dispatchers.
func (c *Coordinator) Dispatchers() *Dispatchers {
	return c.d
}

// AddTimer registers a timer with the scheduler.
func (c *Coordinator) AddTimer(t timer.Timer) bool {
	return c.sched.AddTimer(t)
}

// AddPump registers a pump run at the start of every iteration and at each
// of its due times.
func (c *Coordinator) AddPump(p Pump) {
	c.pumps = append(c.pumps, p)
}

// Now returns the coordinator's current time.
func (c *Coordinator) Now() schema.Timeval {
	return c.now
}

// Iterations returns how many events were processed.
func (c *Coordinator) Iterations() uint64 {
	return c.iterations
}

// Halt queues a halt for symbol, applied at the end of the iteration.
func (c *Coordinator) Halt(symbol schema.SymbolID, reason string) {
	c.queueAdmin(symbol, adminState{halted: true, reason: reason})
}

// Resume queues a resume for symbol, applied at the end of the iteration.
func (c *Coordinator) Resume(symbol schema.SymbolID) {
	c.queueAdmin(symbol, adminState{})
}

// Stop requests the end of the run. The first request wins.
func (c *Coordinator) Stop(status schema.StopStatus, reason string) {
	if c.stop != nil {
		return
	}
	if status == schema.StopNone {
		status = schema.StopStopped
	}
	c.stop = &StopRequest{Status: status, Reason: reason}
}

// Stopping returns the pending stop request, if any.
func (c *Coordinator) Stopping() (StopRequest, bool) {
	if c.stop == nil {
		return StopRequest{}, false
	}
	return *c.stop, true
}

// Run pulls events from src until a stop is requested.
func (c *Coordinator) Run(ctx context.Context, src Source) RunResult {
	if src == nil {
		c.Stop(schema.StopFailure, exception.ErrNilSource.Error())
	}
	for c.stop == nil {
		ev, drained, err := src.Next(ctx, c.nextDue())
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.Stop(schema.StopComplete, "source exhausted")
			case ctx.Err() != nil:
				c.Stop(schema.StopStopped, ctx.Err().Error())
			default:
				c.Stop(schema.StopFailure, err.Error())
			}
			continue
		}
		c.Process(ev, drained)
	}
	return c.finish()
}

func (c *Coordinator) finish() RunResult {
	res := RunResult{
		Status:     c.stop.Status,
		Reason:     c.stop.Reason,
		Iterations: c.iterations,
		Dropped:    c.dropped,
	}
	if res.Status == schema.StopFailure {
		logs.Errorf("core: run ended with %s after %d events, reason: %s", res.Status, res.Iterations, res.Reason)
	} else {
		logs.Infof("core: run ended with %s after %d events, reason: %s", res.Status, res.Iterations, res.Reason)
	}
	return res
}

// Process runs one iteration: due timers and pumps, classification and
// publication of ev, admin flush, then the wakeup when drained.
func (c *Coordinator) Process(ev schema.Event, drained bool) {
	start := time.Now()
	c.iterations++
	c.metrics.ObserveEvent(ev.Header)

	c.advance(eventTime(ev.Header))
	if err := c.classify(ev); err != nil {
		c.drop(err)
	}
	c.flushAdmin()
	if drained {
		c.metrics.IncWakeup()
		c.d.Wakeup.Dispatch(Wakeup{At: c.now, Iteration: c.iterations})
	}
	c.metrics.ObserveDispatch(time.Since(start))
}

// advance moves time to now. Timers and pumped work due in between are run
// in time order; at equal times pumped work goes first.
func (c *Coordinator) advance(now schema.Timeval) {
	if !c.started {
		c.started = true
		c.sched.Start(now)
	}
	if now > c.now {
		c.now = now
	}
	for due := c.nextDue(); due <= c.now; due = c.nextDue() {
		c.sched.Advance(due)
		for _, p := range c.pumps {
			if p.NextDue() <= due {
				p.Pump(due)
			}
		}
		c.metrics.AddTimerFires(c.sched.CheckTimes(due))
	}
	c.sched.CheckTimes(c.now)
	for _, p := range c.pumps {
		p.Pump(c.now)
	}
}

// nextDue returns the earliest of the next timer and every pump's next item.
func (c *Coordinator) nextDue() schema.Timeval {
	due := c.sched.NextFire()
	for _, p := range c.pumps {
		due = min(due, p.NextDue())
	}
	return due
}

func (c *Coordinator) classify(ev schema.Event) error {
	h, ok := c.handlers[classKey{family: ev.Header.Family, kind: ev.Header.Kind}]
	if !ok {
		return exception.ErrUnsupportedKind
	}
	return h(ev)
}

func (c *Coordinator) drop(err error) {
	c.dropped++
	switch {
	case errors.Is(err, exception.ErrPayloadKindMismatch):
		c.metrics.IncDrop(obs.DropPayloadMismatch)
	case errors.Is(err, exception.ErrUnknownSymbol):
		c.metrics.IncDrop(obs.DropUnknownSymbol)
	default:
		c.metrics.IncDrop(obs.DropUnsupportedKind)
	}
}

func (c *Coordinator) queueAdmin(symbol schema.SymbolID, st adminState) {
	if _, ok := c.admin[symbol]; !ok {
		c.adminOrder = append(c.adminOrder, symbol)
	}
	c.admin[symbol] = st
}

func (c *Coordinator) flushAdmin() {
	if len(c.adminOrder) == 0 {
		return
	}
	order := c.adminOrder
	c.adminOrder = nil
	for _, symbol := range order {
		st := c.admin[symbol]
		delete(c.admin, symbol)
		if c.halts != nil {
			c.halts.SetHalted(symbol, st.halted, st.reason)
		}
		text := "resumed"
		if st.halted {
			text = "halted: " + st.reason
		}
		c.d.UserMessage.Dispatch(schema.UserMessage{Channel: AdminChannel, Symbol: symbol, Text: text})
	}
}

// adminCommand parses "halt <reason>" and "resume".
func adminCommand(text string) (adminState, bool) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	switch strings.ToLower(verb) {
	case "halt":
		return adminState{halted: true, reason: strings.TrimSpace(rest)}, true
	case "resume":
		return adminState{}, true
	default:
		return adminState{}, false
	}
}

func eventTime(h schema.EventHeader) schema.Timeval {
	if h.TsRecv > 0 && !h.TsRecv.IsNone() {
		return h.TsRecv
	}
	return h.TsEvent
}
