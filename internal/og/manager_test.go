package og

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/alert"
	"tradecore/internal/dispatch"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/seqno"
	"tradecore/pkg/exception"
)

type fakeTransport struct {
	unavailable bool
	reject      RejectReason
	position    int64
	locates     int64
	orders      map[uint32]*TransportOrder
	submitted   int
	cancels     []uint32
	cancelAll   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{orders: make(map[uint32]*TransportOrder), locates: 10_000}
}

func (f *fakeTransport) Available() bool { return !f.unavailable }

func (f *fakeTransport) Submit(o *TransportOrder) (bool, RejectReason) {
	f.submitted++
	if f.reject != RejectNone {
		return false, f.reject
	}
	f.orders[o.ID] = o
	return true, RejectNone
}

func (f *fakeTransport) Cancel(_ string, id uint32) bool {
	if _, ok := f.orders[id]; !ok {
		return false
	}
	f.cancels = append(f.cancels, id)
	return true
}

func (f *fakeTransport) CancelAll() { f.cancelAll++ }

func (f *fakeTransport) Lookup(_ string, id uint32, _ bool) (*TransportOrder, bool) {
	o, ok := f.orders[id]
	return o, ok
}

func (f *fakeTransport) Position(schema.SymbolID) int64 { return f.position }
func (f *fakeTransport) Locates(schema.SymbolID) int64  { return f.locates }

type harness struct {
	mgr       *Manager
	transport *fakeTransport
	seq       *seqno.Allocator
	alerts    *alert.Recorder
	published []OrderUpdate
	now       schema.Timeval
	ibm       schema.SymbolID
	arca      schema.VenueID
	bats      schema.VenueID
}

func newHarness(t *testing.T, cfg Config, threshold int, policy BreachPolicy) *harness {
	t.Helper()
	h := &harness{alerts: &alert.Recorder{}}
	h.now = schema.FromTime(time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC))
	clock := func() schema.Timeval { return h.now }

	reg := schema.NewRegistry()
	var err error
	h.arca, err = reg.AddVenue("ARCA")
	require.NoError(t, err)
	h.bats, err = reg.AddVenue("BATS")
	require.NoError(t, err)
	h.ibm, err = reg.AddSymbol("IBM", h.arca)
	require.NoError(t, err)

	h.seq, err = seqno.New(seqno.Config{Offset: 10}, seqno.WithClock(clock))
	require.NoError(t, err)

	orders := dispatch.New[*Order]("orders")
	orders.AddFunc("recorder", func(o *Order) { h.published = append(h.published, o.Last()) })

	h.mgr, err = NewManager(cfg, Deps{
		Registry: reg,
		Sequence: h.seq,
		Risk:     risk.NewEngine(risk.Config{MaxOrderQty: 5000}),
		Guard:    NewRejectGuard(threshold, policy, h.alerts),
		Orders:   orders,
		Alerts:   h.alerts,
		Clock:    clock,
	})
	require.NoError(t, err)

	h.transport = newFakeTransport()
	require.NoError(t, h.mgr.AddTransport(h.arca, h.transport))
	return h
}

func (h *harness) buy(size schema.Quantity) PlaceRequest {
	return PlaceRequest{Symbol: h.ibm, Venue: h.arca, Side: schema.SideBuy, Size: size, Price: 1500, Algo: 7}
}

func (h *harness) place(t *testing.T, req PlaceRequest) (*Order, *TransportOrder) {
	t.Helper()
	res, o := h.mgr.PlaceOrder(req)
	require.Equal(t, ResultGood, res)
	require.NotNil(t, o)
	to, ok := h.transport.Lookup("", o.ID, true)
	require.True(t, ok)
	return o, to
}

func TestPlaceOrderModeNoneAllocatesNothing(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeNone}, 10, BreachAlert)
	for i := 0; i < 5; i++ {
		res, o := h.mgr.PlaceOrder(h.buy(100))
		if res != ResultNoRoute || o != nil {
			t.Fatalf("mode none: got (%s, %v) want (no_route, nil)", res, o)
		}
	}
	assert.Equal(t, uint64(0), h.seq.Issued())
	assert.Equal(t, 0, h.transport.submitted)
	assert.Empty(t, h.published)
}

func TestPlaceOrderRouting(t *testing.T) {
	testCases := []struct {
		desc  string
		cfg   Config
		setup func(h *harness, req *PlaceRequest)
		want  OrderResult
		alloc bool
	}{
		{
			desc: "accepted",
			cfg:  Config{Mode: ModeSim},
			want: ResultGood, alloc: true,
		},
		{
			desc: "listen only",
			cfg:  Config{Mode: ModeLive, ListenOnly: true},
			want: ResultNoRoute,
		},
		{
			desc:  "venue without transport",
			cfg:   Config{Mode: ModeSim},
			setup: func(h *harness, req *PlaceRequest) { req.Venue = h.bats },
			want:  ResultNoRoute,
		},
		{
			desc:  "unknown symbol",
			cfg:   Config{Mode: ModeSim},
			setup: func(_ *harness, req *PlaceRequest) { req.Symbol = 99 },
			want:  ResultNoRoute,
		},
		{
			desc:  "transport unavailable",
			cfg:   Config{Mode: ModeSim},
			setup: func(h *harness, _ *PlaceRequest) { h.transport.unavailable = true },
			want:  ResultNoReason,
		},
		{
			desc:  "halted symbol",
			cfg:   Config{Mode: ModeSim},
			setup: func(h *harness, _ *PlaceRequest) { h.mgr.SetHalted(h.ibm, true, "LULD") },
			want:  ResultHalted,
		},
		{
			desc:  "risk limit",
			cfg:   Config{Mode: ModeSim},
			setup: func(_ *harness, req *PlaceRequest) { req.Size = 6000 },
			want:  ResultRiskLimit,
		},
		{
			desc: "short without locates in live mode",
			cfg:  Config{Mode: ModeLive},
			setup: func(h *harness, req *PlaceRequest) {
				req.Side = schema.SideSell
				h.transport.locates = 150
			},
			want: ResultUnshortable,
		},
		{
			desc: "short without locates in sim mode",
			cfg:  Config{Mode: ModeSim},
			setup: func(h *harness, req *PlaceRequest) {
				req.Side = schema.SideSell
				h.transport.locates = 0
			},
			want: ResultGood, alloc: true,
		},
		{
			desc:  "transport reject is mapped",
			cfg:   Config{Mode: ModeSim},
			setup: func(h *harness, _ *PlaceRequest) { h.transport.reject = RejectInvalidPrice },
			want:  ResultInvalidPrice, alloc: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			h := newHarness(t, tc.cfg, 10, BreachAlert)
			req := h.buy(100)
			if tc.setup != nil {
				tc.setup(h, &req)
			}
			res, o := h.mgr.PlaceOrder(req)
			if res != tc.want {
				t.Fatalf("unexpected result: got %s want %s", res, tc.want)
			}
			if res.OK() != (o != nil) {
				t.Fatalf("order presence mismatch: result %s order %v", res, o)
			}
			if got := h.seq.Issued() > 0; got != tc.alloc {
				t.Fatalf("allocation mismatch: got %v want %v", got, tc.alloc)
			}
			if !res.OK() {
				assert.Empty(t, h.published)
			}
		})
	}
}

func TestLifecycleCarriesFiguresForward(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	o, to := h.place(t, h.buy(100))

	assert.Equal(t, UpdatePlacing, o.Last().Tag)
	assert.Equal(t, StateNew, o.State())
	assert.Equal(t, h.arca, seqno.Decode(o.ID))
	assert.Equal(t, Algo(7), o.Algo)

	h.now = h.now.Add(time.Millisecond)
	h.mgr.OnConfirm(to, h.now)
	assert.Equal(t, StateOpen, o.State())

	h.mgr.OnFill(to, Fill{Shares: 40, Price: 1500, Liquidity: LiquidityAdded, ExecID: 1, Time: h.now})
	require.Equal(t, UpdateFilled, o.Last().Tag)
	assert.Equal(t, schema.Quantity(40), o.Last().Filled)
	assert.Equal(t, schema.Quantity(60), o.OpenShares())

	require.True(t, h.mgr.CancelOrder(o.ID))
	canceling := o.Canceling()
	assert.Equal(t, schema.Quantity(40), canceling.Filled)
	assert.Equal(t, LiquidityAdded, canceling.Liquidity)

	h.mgr.OnCancel(to, h.now)
	assert.Equal(t, UpdateCanceled, o.Last().Tag)
	assert.Equal(t, schema.Quantity(60), o.Last().Canceled)
	assert.Equal(t, schema.Quantity(40), o.Last().Filled)
	assert.True(t, o.IsDone())

	tags := make([]Tag, 0, len(h.published))
	for _, u := range h.published {
		tags = append(tags, u.Tag)
	}
	assert.Equal(t, []Tag{UpdatePlacing, UpdateConfirmed, UpdateFilled, UpdateCanceling, UpdateCanceled}, tags)
}

func TestCancelOrderIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	o, to := h.place(t, h.buy(100))
	h.mgr.OnConfirm(to, h.now)

	if !h.mgr.CancelOrder(o.ID) {
		t.Fatalf("first cancel refused")
	}
	if h.mgr.CancelOrder(o.ID) {
		t.Fatalf("second cancel accepted")
	}

	n := 0
	for _, u := range o.Updates() {
		if u.Tag == UpdateCanceling {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Len(t, h.transport.cancels, 1)
	assert.False(t, h.mgr.CancelOrder(12345))
}

func TestTransitionReachability(t *testing.T) {
	all := []Tag{UpdateNone, UpdatePlacing, UpdateConfirmed, UpdateRejected, UpdateCanceling, UpdateCanceled, UpdateCxlRejected, UpdateFilled}
	for _, from := range all {
		for _, to := range all {
			ok := CanTransition(from, to)
			switch {
			case from == UpdateNone && ok && to != UpdatePlacing:
				t.Fatalf("none must only reach placing, reached %s", to)
			case from == UpdatePlacing && ok && to != UpdateConfirmed && to != UpdateRejected:
				t.Fatalf("placing reached %s", to)
			case to == UpdateFilled && ok:
				switch from {
				case UpdateConfirmed, UpdateCanceling, UpdateCxlRejected, UpdateFilled:
				default:
					t.Fatalf("filled reached from %s", from)
				}
			case (from == UpdateCanceled || from == UpdateRejected) && ok:
				t.Fatalf("terminal %s reached %s", from, to)
			}
		}
	}
}

func TestCumulativeFiguresNeverDecrease(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		h := newHarness(t, Config{Mode: ModeSim}, 1000, BreachAlert)
		o, to := h.place(t, h.buy(500))
		for step := 0; step < 30; step++ {
			switch rng.Intn(6) {
			case 0:
				h.mgr.OnConfirm(to, h.now)
			case 1, 2:
				h.mgr.OnFill(to, Fill{Shares: schema.Quantity(rng.Intn(120) + 1), Price: 1500, ExecID: uint64(rng.Intn(20) + 1), Time: h.now})
			case 3:
				h.mgr.CancelOrder(o.ID)
			case 4:
				h.mgr.OnCancelReject(to, h.now)
			case 5:
				if rng.Intn(4) == 0 {
					h.mgr.OnCancel(to, h.now)
				}
			}
		}

		var prev OrderUpdate
		for i, u := range o.Updates() {
			if u.Filled < prev.Filled || u.Canceled < prev.Canceled {
				t.Fatalf("run %d update %d decreased: prev %+v got %+v", run, i, prev, u)
			}
			if u.Filled+u.Canceled > o.Size {
				t.Fatalf("run %d update %d exceeds size: %+v", run, i, u)
			}
			if i > 0 && !CanTransition(prev.Tag, u.Tag) {
				t.Fatalf("run %d update %d illegal %s -> %s", run, i, prev.Tag, u.Tag)
			}
			prev = u
		}
	}
}

func TestToleratesMissingAndDuplicateAcks(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	o, to := h.place(t, h.buy(100))

	// fill before the confirmation
	h.mgr.OnFill(to, Fill{Shares: 30, ExecID: 9, Time: h.now})
	updates := o.Updates()
	require.Len(t, updates, 3)
	assert.Equal(t, UpdateConfirmed, updates[1].Tag)
	assert.True(t, updates[1].Synthetic)
	assert.Equal(t, UpdateFilled, updates[2].Tag)

	// late confirmation and repeated execution are ignored
	h.mgr.OnConfirm(to, h.now)
	h.mgr.OnFill(to, Fill{Shares: 30, ExecID: 9, Time: h.now})
	assert.Len(t, o.Updates(), 3)
	assert.Equal(t, schema.Quantity(30), o.Last().Filled)

	// overfill is clamped to size
	h.mgr.OnFill(to, Fill{Shares: 500, ExecID: 10, Time: h.now})
	assert.Equal(t, schema.Quantity(100), o.Last().Filled)
	assert.Equal(t, schema.Quantity(70), o.Last().Shares)
	assert.True(t, o.IsDone())

	// anything after done is dropped, a new fill raises a warning
	h.mgr.OnFill(to, Fill{Shares: 5, ExecID: 11, Time: h.now})
	h.mgr.OnCancel(to, h.now)
	assert.Len(t, o.Updates(), 4)
	assert.Equal(t, 1, h.alerts.Count(alert.CodeLateFill))
}

func TestRepeatedAcksAfterDoneAreStale(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	o, to := h.place(t, h.buy(100))
	h.mgr.OnConfirm(to, h.now)
	h.mgr.OnFill(to, Fill{Shares: 40, Price: 1500, ExecID: 1, Time: h.now})
	require.True(t, h.mgr.CancelOrder(o.ID))
	h.mgr.OnCancel(to, h.now)
	require.True(t, o.IsDone())
	n := len(o.Updates())

	fill := func(execID uint64) OrderUpdate {
		u := o.next(UpdateFilled, h.now)
		u.ExecID = execID
		u.Shares = 10
		return u
	}
	testCases := []struct {
		desc string
		u    OrderUpdate
		want error
	}{
		{desc: "repeated cancel", u: o.next(UpdateCanceled, h.now), want: exception.ErrOrderStaleUpdate},
		{desc: "repeated confirm", u: o.next(UpdateConfirmed, h.now), want: exception.ErrOrderStaleUpdate},
		{desc: "repeated execution", u: fill(1), want: exception.ErrOrderStaleUpdate},
		{desc: "new execution", u: fill(2), want: exception.ErrOrderDone},
		{desc: "reject never seen", u: o.next(UpdateRejected, h.now), want: exception.ErrOrderDone},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := o.apply(tc.u)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Len(t, o.Updates(), n)

	// a duplicated reject ack is counted once
	_, rejected := h.place(t, h.buy(100))
	h.mgr.OnReject(rejected, RejectInvalidSize, h.now)
	h.mgr.OnReject(rejected, RejectInvalidSize, h.now)
	assert.Equal(t, 1, h.mgr.Guard().Count())
	assert.Len(t, rejected.Order().Updates(), 2)
}

func TestCallbackCreatesWrapperLazily(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	to := &TransportOrder{ID: seqno.Encode(h.arca, 777), Venue: h.arca, Symbol: h.ibm, Side: schema.SideSell, Size: 200, Price: 1490}

	h.mgr.OnCancelReject(to, h.now)
	o := to.Order()
	require.NotNil(t, o)
	assert.Equal(t, AlgoUnknown, o.Algo)
	tags := []Tag{}
	for _, u := range o.Updates() {
		tags = append(tags, u.Tag)
	}
	assert.Equal(t, []Tag{UpdatePlacing, UpdateConfirmed, UpdateCanceling, UpdateCxlRejected}, tags)

	h.mgr.OnConfirm(to, h.now)
	assert.Same(t, o, to.Order())
	assert.Len(t, o.Updates(), 4)
}

func TestCancelWithoutWrapperAlerts(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	id := seqno.Encode(h.arca, 5)
	h.transport.orders[id] = &TransportOrder{ID: id, Venue: h.arca, Symbol: h.ibm, SymbolName: "IBM", Size: 10}

	assert.False(t, h.mgr.CancelOrder(id))
	assert.Equal(t, 1, h.alerts.Count(alert.CodeWrapperNotFound))

	assert.False(t, h.mgr.CancelOrder(seqno.Encode(9, 5)))
	assert.Equal(t, 1, h.alerts.Count(alert.CodeUnmappedVenue))
}

func TestRejectGuardAlertsAfterThreshold(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	for i := 1; i <= 11; i++ {
		_, to := h.place(t, h.buy(100))
		h.mgr.OnReject(to, RejectInvalidSize, h.now)
		alerts := h.alerts.Count(alert.CodeRejectThreshold)
		if i <= 10 && alerts != 0 {
			t.Fatalf("reject %d alerted before threshold", i)
		}
		if i == 11 && alerts != 1 {
			t.Fatalf("reject %d: got %d alerts want 1", i, alerts)
		}
	}
	assert.True(t, h.mgr.Guard().Alerting())
	got := h.alerts.Alerts[len(h.alerts.Alerts)-1]
	assert.Equal(t, alert.SeverityCritical, got.Severity)
	assert.Equal(t, "IBM", got.Symbol)
	assert.Equal(t, "ARCA", got.Venue)
	assert.Equal(t, "invalid_size", got.Reason)

	// alert-only policy keeps trading
	res, _ := h.mgr.PlaceOrder(h.buy(100))
	assert.Equal(t, ResultGood, res)
}

func TestRejectGuardHaltPolicy(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 2, BreachHalt)
	h.transport.reject = RejectOther
	for i := 0; i < 3; i++ {
		res, _ := h.mgr.PlaceOrder(h.buy(100))
		require.Equal(t, ResultVenueReject, res)
	}
	assert.Equal(t, 3, h.mgr.Guard().Count())

	h.transport.reject = RejectNone
	res, _ := h.mgr.PlaceOrder(h.buy(100))
	assert.Equal(t, ResultHalted, res)

	h.mgr.ResumeAll()
	res, _ = h.mgr.PlaceOrder(h.buy(100))
	assert.Equal(t, ResultGood, res)
}

func TestBenignRejectsAreNotCounted(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 0, BreachAlert)
	_, to := h.place(t, h.buy(100))
	h.mgr.OnReject(to, RejectWouldCross, h.now)

	assert.Equal(t, 0, h.mgr.Guard().Count())
	assert.Equal(t, UpdateRejected, to.Order().Last().Tag)
	assert.Equal(t, ResultWouldCross, to.Order().Last().Result)
}

func TestFeeRouteSubstitutesVenue(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim, FeeOptimize: true}, 10, BreachAlert)
	h.mgr.cfg.FeeRoutes = map[schema.VenueID]FeeRoute{h.bats: {Venue: h.arca, Flag: RoutePostOnly}}

	req := h.buy(100)
	req.Venue = h.bats
	o, to := h.place(t, req)
	assert.Equal(t, h.arca, o.Venue)
	assert.Equal(t, RoutePostOnly, to.RouteFlag)
	assert.Equal(t, h.arca, seqno.Decode(o.ID))
}

func TestCancelAllReachesEveryTransport(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeSim}, 10, BreachAlert)
	other := newFakeTransport()
	require.NoError(t, h.mgr.AddTransport(h.bats, other))

	h.mgr.CancelAll()
	assert.Equal(t, 1, h.transport.cancelAll)
	assert.Equal(t, 1, other.cancelAll)
}
