package ops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/og"
	"tradecore/internal/risk"
	"tradecore/pkg/exception"
)

const sample = `{
  "mode": "sim",
  "feeOptimize": true,
  "timezone": "UTC",
  "venues": [
    {"name": "ARCA", "account": "T1", "data": true,
     "latency": {"sequencing": "100us", "live": "50us", "reply": 200000, "cancel": "80us"}},
    {"name": "BATS", "account": "T2", "chaos": {"duplicateRate": 0.1}}
  ],
  "symbols": [
    {"name": "IBM", "venue": "ARCA", "maxOrderQty": 500, "maxNotional": "25000.5", "locates": 1000},
    {"name": "MSFT", "venue": "BATS"}
  ],
  "feeRoutes": [{"from": "ARCA", "to": "BATS", "flag": "postOnly"}],
  "seqno": {"offset": 10},
  "risk": {"maxOrderQty": 1000, "maxOrderNotional": "100000", "orderRateLimit": 50, "orderRateWindow": "1s"},
  "reject": {"threshold": 20, "policy": "halt"},
  "feed": {"source": "paper", "interval": "5ms"}
}`

func TestDecodeResolvesEverything(t *testing.T) {
	l, err := Decode([]byte(sample), map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, og.ModeSim, l.Mode)
	assert.Equal(t, time.UTC, l.Location)
	require.Len(t, l.Venues, 2)
	arca := l.Venues[0]
	assert.Equal(t, "T1", arca.Account)
	assert.True(t, arca.Data)
	assert.Equal(t, 100*time.Microsecond, arca.Sim.Latency.Sequencing)
	assert.Equal(t, 200*time.Microsecond, arca.Sim.Latency.Reply)
	assert.True(t, l.Venues[1].Sim.Chaos.Enabled())

	ibm, ok := l.Registry.SymbolIDByName("IBM")
	require.True(t, ok)
	if got := l.SymbolLimits[ibm]; got != (risk.SymbolLimits{MaxOrderQty: 500, MaxOrderNotional: 250_005_000}) {
		t.Fatalf("IBM limits: got %+v", got)
	}
	assert.Equal(t, int64(1000), arca.Sim.Locates[ibm])
	assert.Len(t, l.SymbolLimits, 1)

	assert.Equal(t, int64(1_000_000_000), l.Risk.MaxOrderNotional)
	assert.Equal(t, time.Second, l.Risk.OrderRateWindow)
	assert.Equal(t, og.BreachHalt, l.Policy)
	assert.Equal(t, 20, l.Threshold)
	assert.Equal(t, uint32(10), l.Seqno.Offset)
	assert.Equal(t, og.FeeRoute{Venue: l.Venues[1].ID, Flag: og.RoutePostOnly}, l.Manager.FeeRoutes[arca.ID])
	assert.Equal(t, "T2", l.Manager.Accounts[l.Venues[1].ID])
	assert.Equal(t, 5*time.Millisecond, l.File.Feed.Interval.Std())
	assert.Equal(t, defaultQueueSize, l.File.Feed.QueueSize)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	l, err := Decode([]byte(sample), map[string]string{
		"TRADER_MODE":             "none",
		"TRADER_LISTEN_ONLY":      "true",
		"TRADER_REJECT_THRESHOLD": "-1",
		"TRADER_KAFKA_BROKERS":    "k1:9092,k2:9092",
		"TRADER_FEED_SOURCE":      "replay",
		"TRADER_REPLAY_DIR":       "/data/events",
		"TRADER_FEED_INTERVAL":    "1ms",
	})
	require.NoError(t, err)
	assert.Equal(t, og.ModeNone, l.Mode)
	assert.True(t, l.Manager.ListenOnly)
	assert.Equal(t, -1, l.Threshold)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, l.File.Alerts.KafkaBrokers)
	assert.Equal(t, FeedReplay, l.File.Feed.Source)
	assert.Equal(t, time.Millisecond, l.File.Feed.Interval.Std())
}

func TestResolveFailsFast(t *testing.T) {
	base := func() File {
		return File{
			Mode:     "sim",
			Timezone: "UTC",
			Venues:   []VenueConfig{{Name: "ARCA", Account: "T1"}},
			Symbols:  []SymbolConfig{{Name: "IBM", Venue: "ARCA"}},
		}
	}
	testCases := []struct {
		desc   string
		mutate func(f *File)
		want   error
	}{
		{desc: "bad mode", mutate: func(f *File) { f.Mode = "paper" }, want: exception.ErrConfigInvalid},
		{desc: "no venues", mutate: func(f *File) { f.Venues = nil }, want: exception.ErrConfigInvalid},
		{desc: "duplicate venue", mutate: func(f *File) { f.Venues = append(f.Venues, f.Venues[0]) }, want: exception.ErrConfigInvalid},
		{desc: "missing account", mutate: func(f *File) { f.Venues[0].Account = "" }, want: exception.ErrConfigInvalid},
		{desc: "negative latency", mutate: func(f *File) { f.Venues[0].Latency.Reply = -1 }, want: exception.ErrConfigInvalid},
		{desc: "bad chaos", mutate: func(f *File) { f.Venues[0].Chaos.DropRate = 2 }, want: exception.ErrConfigInvalid},
		{desc: "unknown symbol venue", mutate: func(f *File) { f.Symbols[0].Venue = "EDGX" }, want: exception.ErrConfigUnknownVenue},
		{desc: "fee route to itself", mutate: func(f *File) { f.FeeRoutes = []FeeRouteConfig{{From: "ARCA", To: "ARCA"}} }, want: exception.ErrConfigInvalid},
		{desc: "fee route unknown", mutate: func(f *File) { f.FeeRoutes = []FeeRouteConfig{{From: "ARCA", To: "EDGX"}} }, want: exception.ErrConfigUnknownVenue},
		{desc: "bad policy", mutate: func(f *File) { f.Reject.Policy = "panic" }, want: exception.ErrConfigInvalid},
		{desc: "replay without dir", mutate: func(f *File) { f.Feed.Source = FeedReplay }, want: exception.ErrConfigInvalid},
		{desc: "rate without window", mutate: func(f *File) { f.Risk.OrderRateLimit = 5 }, want: exception.ErrConfigInvalid},
		{desc: "bad timezone", mutate: func(f *File) { f.Timezone = "Mars/Olympus" }, want: exception.ErrConfigInvalid},
	}

	_, err := Resolve(base())
	require.NoError(t, err)
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := base()
			tc.mutate(&f)
			_, err := Resolve(f)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err: got %v want %v", err, tc.want)
			}
		})
	}
}

func TestDurationDecoding(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1.5ms"`)))
	assert.Equal(t, 1500*time.Microsecond, d.Std())
	require.NoError(t, d.UnmarshalJSON([]byte(`42`)))
	assert.Equal(t, Duration(42), d)
	require.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	out, err := Duration(time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1s"`, string(out))
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Registry.SymbolCount())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
