package sim

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/adapter"
	"tradecore/internal/chaos"
	"tradecore/internal/og"
	"tradecore/internal/schema"
)

type ackLog struct {
	acks []string
}

func (l *ackLog) OnConfirm(o *og.TransportOrder, at schema.Timeval) {
	l.acks = append(l.acks, fmt.Sprintf("confirm %d @%d", o.ID, at))
}

func (l *ackLog) OnFill(o *og.TransportOrder, f og.Fill) {
	l.acks = append(l.acks, fmt.Sprintf("fill %d %dx%d liq=%d @%d", o.ID, f.Shares, f.Price, f.Liquidity, f.Time))
}

func (l *ackLog) OnCancel(o *og.TransportOrder, at schema.Timeval) {
	l.acks = append(l.acks, fmt.Sprintf("cancel %d @%d", o.ID, at))
}

func (l *ackLog) OnReject(o *og.TransportOrder, reason og.RejectReason, at schema.Timeval) {
	l.acks = append(l.acks, fmt.Sprintf("reject %d %d @%d", o.ID, reason, at))
}

func (l *ackLog) OnCancelReject(o *og.TransportOrder, at schema.Timeval) {
	l.acks = append(l.acks, fmt.Sprintf("cxl_reject %d @%d", o.ID, at))
}

const (
	ibm schema.SymbolID = 1
	us                  = schema.Timeval(time.Microsecond)
)

var testLatency = Latency{
	Sequencing: 100 * time.Microsecond,
	Live:       50 * time.Microsecond,
	Reply:      200 * time.Microsecond,
	Cancel:     80 * time.Microsecond,
}

type fixture struct {
	tr   *Transport
	book *adapter.TopOfBook
	log  *ackLog
	now  schema.Timeval
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{book: adapter.NewTopOfBook(1), log: &ackLog{}}
	if cfg.Latency == (Latency{}) {
		cfg.Latency = testLatency
	}
	tr, err := New(cfg, Deps{Book: f.book, Callbacks: f.log, Clock: func() schema.Timeval { return f.now }})
	require.NoError(t, err)
	f.tr = tr
	return f
}

func (f *fixture) quote(side schema.Side, size schema.Quantity, price schema.Price) {
	f.book.Update(schema.DataUpdate{Kind: schema.DataBookChange, Side: side, Symbol: ibm, Size: size, Price: price})
}

func (f *fixture) pump(at schema.Timeval) int {
	f.now = at
	return f.tr.Pump(at)
}

func order(id uint32, side schema.Side, size schema.Quantity, price schema.Price) *og.TransportOrder {
	return &og.TransportOrder{Account: "acct", ID: id, Symbol: ibm, Side: side, Size: size, Price: price}
}

func TestNewRequiresBookAndClock(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, Config{})
	testCases := []struct {
		desc   string
		order  *og.TransportOrder
		ok     bool
		reason og.RejectReason
	}{
		{"zero size", order(1, schema.SideBuy, 0, 100), false, og.RejectInvalidSize},
		{"zero price", order(2, schema.SideBuy, 10, 0), false, og.RejectInvalidPrice},
		{"accepted", order(3, schema.SideBuy, 10, 100), true, og.RejectNone},
		{"duplicate id", order(3, schema.SideBuy, 10, 100), false, og.RejectDuplicateID},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ok, reason := f.tr.Submit(tc.order)
			if ok != tc.ok || reason != tc.reason {
				t.Fatalf("submit: got (%v, %d) want (%v, %d)", ok, reason, tc.ok, tc.reason)
			}
		})
	}
}

func TestConfirmHonoursLatency(t *testing.T) {
	f := newFixture(t, Config{})
	f.quote(schema.SideSell, 100, 101)
	ok, _ := f.tr.Submit(order(1, schema.SideBuy, 50, 100))
	require.True(t, ok)

	assert.Equal(t, 0, f.pump(299*us))
	assert.Equal(t, 1, f.pump(300*us))
	assert.Equal(t, []string{"confirm 1 @300000"}, f.log.acks)

	open, ok := f.tr.Open("acct", 1)
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(50), open)
}

func TestMarketableOrderTakesThenRests(t *testing.T) {
	f := newFixture(t, Config{})
	f.quote(schema.SideSell, 100, 101)
	ok, _ := f.tr.Submit(order(1, schema.SideBuy, 150, 101))
	require.True(t, ok)

	f.pump(350 * us)
	assert.Equal(t, []string{
		"confirm 1 @300000",
		fmt.Sprintf("fill 1 100x101 liq=%d @350000", og.LiquidityRemoved),
	}, f.log.acks)
	assert.Equal(t, int64(100), f.tr.Position(ibm))

	f.now = 400 * us
	f.tr.Update(schema.DataUpdate{Kind: schema.DataVisibleTrade, Symbol: ibm, Size: 80, Price: 101})
	f.pump(600 * us)
	require.Len(t, f.log.acks, 3)
	assert.Equal(t, fmt.Sprintf("fill 1 50x101 liq=%d @600000", og.LiquidityAdded), f.log.acks[2])
	assert.Equal(t, int64(150), f.tr.Position(ibm))

	if f.tr.Cancel("acct", 1) {
		t.Fatal("cancel of a filled order must fail")
	}
}

func TestCancelFlow(t *testing.T) {
	f := newFixture(t, Config{})
	ok, _ := f.tr.Submit(order(1, schema.SideSell, 10, 200))
	require.True(t, ok)
	f.pump(1000 * us)

	require.True(t, f.tr.Cancel("acct", 1))
	f.pump(1279 * us)
	assert.Len(t, f.log.acks, 1)
	f.pump(1280 * us)
	assert.Equal(t, "cancel 1 @1280000", f.log.acks[1])
	assert.False(t, f.tr.Cancel("acct", 1))
	assert.False(t, f.tr.Cancel("acct", 99))

	_, found := f.tr.Lookup("acct", 1, true)
	assert.True(t, found, "finished orders stay known")
}

func TestCancelRaceWithFill(t *testing.T) {
	f := newFixture(t, Config{})
	ok, _ := f.tr.Submit(order(1, schema.SideBuy, 10, 100))
	require.True(t, ok)
	f.pump(1000 * us)

	require.True(t, f.tr.Cancel("acct", 1))
	f.tr.Update(schema.DataUpdate{Kind: schema.DataVisibleTrade, Symbol: ibm, Size: 10, Price: 99})
	f.pump(2000 * us)
	assert.Equal(t, []string{
		"confirm 1 @300000",
		fmt.Sprintf("fill 1 10x100 liq=%d @1200000", og.LiquidityAdded),
		"cxl_reject 1 @1280000",
	}, f.log.acks)
}

func TestTimeoutExpires(t *testing.T) {
	f := newFixture(t, Config{})
	o := order(1, schema.SideBuy, 10, 100)
	o.Timeout = time.Millisecond
	ok, _ := f.tr.Submit(o)
	require.True(t, ok)

	f.pump(1349 * us)
	assert.Len(t, f.log.acks, 1)
	f.pump(1350 * us)
	assert.Equal(t, "cancel 1 @1350000", f.log.acks[1])
}

func TestPostOnlyMarketableIsCanceled(t *testing.T) {
	f := newFixture(t, Config{})
	f.quote(schema.SideSell, 100, 101)
	o := order(1, schema.SideBuy, 10, 101)
	o.RouteFlag = og.RoutePostOnly
	ok, _ := f.tr.Submit(o)
	require.True(t, ok)

	f.pump(schema.Timeval(time.Second))
	assert.Equal(t, []string{"confirm 1 @300000", "cancel 1 @350000"}, f.log.acks)
	assert.Equal(t, int64(0), f.tr.Position(ibm))
}

func TestRequireQuoteRejects(t *testing.T) {
	f := newFixture(t, Config{RequireQuote: true})
	ok, _ := f.tr.Submit(order(1, schema.SideBuy, 10, 100))
	require.True(t, ok)
	f.pump(schema.Timeval(time.Second))
	assert.Equal(t, []string{fmt.Sprintf("reject 1 %d @300000", og.RejectUnknownSymbol)}, f.log.acks)
}

func TestCancelAllAndAvailability(t *testing.T) {
	f := newFixture(t, Config{Locates: map[schema.SymbolID]int64{ibm: 500}})
	for id := uint32(1); id <= 3; id++ {
		ok, _ := f.tr.Submit(order(id, schema.SideBuy, 10, 100))
		require.True(t, ok)
	}
	f.tr.CancelAll()
	f.pump(schema.Timeval(time.Second))
	assert.Equal(t, []string{
		"cancel 1 @280000",
		"cancel 2 @280000",
		"cancel 3 @280000",
	}, f.log.acks)

	assert.True(t, f.tr.Available())
	f.tr.SetAvailable(false)
	assert.False(t, f.tr.Available())
	assert.Equal(t, int64(500), f.tr.Locates(ibm))
	assert.Equal(t, 0, f.tr.Pending())
}

func TestChaosDuplicatesAcks(t *testing.T) {
	f := newFixture(t, Config{Chaos: chaos.Config{Seed: 5, DuplicateRate: 1}})
	ok, _ := f.tr.Submit(order(1, schema.SideBuy, 10, 100))
	require.True(t, ok)
	f.pump(schema.Timeval(time.Second))
	assert.Equal(t, []string{"confirm 1 @300000", "confirm 1 @300000"}, f.log.acks)
}

func TestChaosReorderFlushesHeldAcks(t *testing.T) {
	f := newFixture(t, Config{Chaos: chaos.Config{Seed: 5, ReorderWindow: 8}})
	for id := uint32(1); id <= 3; id++ {
		ok, _ := f.tr.Submit(order(id, schema.SideBuy, 10, 100))
		require.True(t, ok)
	}
	f.pump(schema.Timeval(time.Second))
	assert.Empty(t, f.log.acks)
	assert.Equal(t, 3, f.tr.Pending())

	f.pump(schema.Timeval(2 * time.Second))
	assert.ElementsMatch(t, []string{
		"confirm 1 @300000",
		"confirm 2 @300000",
		"confirm 3 @300000",
	}, f.log.acks)
}
