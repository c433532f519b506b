package risk

import (
	"testing"
	"time"

	"tradecore/internal/schema"
)

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
		req  Request
		want Reason
	}{
		{
			desc: "allowed",
			cfg:  Config{MaxOrderQty: 1000, MaxOrderNotional: 1_000_000},
			req:  Request{Symbol: 1, Side: schema.SideBuy, Size: 100, Price: 500},
			want: ReasonNone,
		},
		{
			desc: "kill switch",
			cfg:  Config{KillSwitch: true},
			req:  Request{Symbol: 1, Side: schema.SideBuy, Size: 1, Price: 1},
			want: ReasonKillSwitch,
		},
		{
			desc: "non positive size",
			req:  Request{Symbol: 1, Side: schema.SideSell, Size: 0, Price: 1},
			want: ReasonInvalidSize,
		},
		{
			desc: "max qty",
			cfg:  Config{MaxOrderQty: 10},
			req:  Request{Symbol: 1, Side: schema.SideBuy, Size: 11, Price: 1},
			want: ReasonMaxQty,
		},
		{
			desc: "max notional",
			cfg:  Config{MaxOrderNotional: 999},
			req:  Request{Symbol: 1, Side: schema.SideBuy, Size: 10, Price: 100},
			want: ReasonMaxNotional,
		},
		{
			desc: "notional overflow",
			req:  Request{Symbol: 1, Side: schema.SideBuy, Size: 1 << 40, Price: 1 << 40},
			want: ReasonMaxNotional,
		},
		{
			desc: "price band",
			cfg:  Config{MaxPriceDeviationBps: 50},
			req:  Request{Symbol: 1, Side: schema.SideBuy, Size: 1, Price: 10100, ReferencePrice: 10000},
			want: ReasonPriceBand,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := NewEngine(tc.cfg).Evaluate(tc.req)
			if got != tc.want {
				t.Fatalf("unexpected reason: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestSymbolLimitsOverride(t *testing.T) {
	e := NewEngine(Config{MaxOrderQty: 1000})
	e.SetSymbolLimits(2, SymbolLimits{MaxOrderQty: 50})

	if got := e.Evaluate(Request{Symbol: 1, Size: 100, Price: 1}); got != ReasonNone {
		t.Fatalf("symbol 1: got %s want none", got)
	}
	if got := e.Evaluate(Request{Symbol: 2, Size: 100, Price: 1}); got != ReasonMaxQty {
		t.Fatalf("symbol 2: got %s want max_qty", got)
	}
}

func TestRateLimitWindow(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	start := schema.Timeval(1_000_000_000)
	req := Request{Symbol: 1, Size: 1, Price: 1, Now: start}

	for i := 0; i < 2; i++ {
		if got := e.Evaluate(req); got != ReasonNone {
			t.Fatalf("order %d: got %s want none", i, got)
		}
	}
	if got := e.Evaluate(req); got != ReasonRateLimit {
		t.Fatalf("third order: got %s want rate_limit", got)
	}
	req.Now = start.Add(time.Second)
	if got := e.Evaluate(req); got != ReasonNone {
		t.Fatalf("next window: got %s want none", got)
	}
}

func TestResolveMarking(t *testing.T) {
	testCases := []struct {
		desc   string
		check  ShortCheck
		want   Marking
		wantOK bool
	}{
		{"buy", ShortCheck{Side: schema.SideBuy, Size: 100}, MarkingBuy, true},
		{"sell covered by position", ShortCheck{Side: schema.SideSell, Size: 100, Position: 100}, MarkingLong, true},
		{"sell beyond position with locates", ShortCheck{Side: schema.SideSell, Size: 300, Position: 100, Locates: 300, EnforceLocates: true}, MarkingShort, true},
		{"sell beyond locates less buffer", ShortCheck{Side: schema.SideSell, Size: 300, Position: 100, Locates: 250, EnforceLocates: true}, MarkingShort, false},
		{"locates ignored when not live", ShortCheck{Side: schema.SideSell, Size: 300, Locates: 0}, MarkingShort, true},
		{"explicit short", ShortCheck{Side: schema.SideSell, Size: 50, Position: 500, Requested: MarkingShort, Locates: 100, EnforceLocates: true}, MarkingShort, false},
		{"short exempt", ShortCheck{Side: schema.SideSell, Size: 50, Requested: MarkingShortExempt, EnforceLocates: true}, MarkingShortExempt, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := ResolveMarking(tc.check)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("got (%s, %v) want (%s, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}
