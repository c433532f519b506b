package ops

import (
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/chaos"
	"tradecore/internal/og"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/seqno"
	"tradecore/internal/sim"
	"tradecore/pkg/exception"
)

const (
	defaultPriceScale   = 4
	defaultTimezone     = "America/New_York"
	defaultFeedInterval = 10 * time.Millisecond
	defaultQueueSize    = 4096
	defaultBasePrice    = 1_000_000

	FeedPaper  = "paper"
	FeedReplay = "replay"
)

// Venue is a resolved venue entry.
type Venue struct {
	ID      schema.VenueID
	Name    string
	Account string
	Data    bool
	Sim     sim.Config
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	File         File
	Mode         og.Mode
	Location     *time.Location
	Registry     *schema.Registry
	Venues       []Venue
	Manager      og.Config
	Risk         risk.Config
	SymbolLimits map[schema.SymbolID]risk.SymbolLimits
	Seqno        seqno.Config
	Threshold    int
	Policy       og.BreachPolicy
}

// Resolve validates f and builds every derived value. It fails on the first
// invalid entry.
func Resolve(f File) (Loaded, error) {
	mode, ok := og.ParseMode(f.Mode)
	if !ok {
		return Loaded{}, invalid("mode %q", f.Mode)
	}
	if f.PriceScale == 0 {
		f.PriceScale = defaultPriceScale
	}
	if f.PriceScale < 0 || f.PriceScale > 9 {
		return Loaded{}, invalid("priceScale %d", f.PriceScale)
	}
	if f.Timezone == "" {
		f.Timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "timezone %q", f.Timezone)
	}
	if err := resolveFeed(&f.Feed); err != nil {
		return Loaded{}, err
	}

	out := Loaded{
		File:         f,
		Mode:         mode,
		Location:     loc,
		Registry:     schema.NewRegistry(),
		SymbolLimits: make(map[schema.SymbolID]risk.SymbolLimits),
		Seqno:        seqno.Config{Offset: f.Seqno.Offset, Increment: f.Seqno.Increment, Reserve: f.Seqno.Reserve, Location: loc},
		Threshold:    f.Reject.Threshold,
	}
	if out.Policy, ok = og.ParseBreachPolicy(f.Reject.Policy); !ok {
		return Loaded{}, invalid("reject policy %q", f.Reject.Policy)
	}
	if out.Threshold < -1 {
		return Loaded{}, invalid("reject threshold %d", out.Threshold)
	}
	if out.Risk, err = resolveRisk(f.Risk, f.PriceScale); err != nil {
		return Loaded{}, err
	}
	if err := out.resolveVenues(f.Venues); err != nil {
		return Loaded{}, err
	}
	if err := out.resolveSymbols(f.Symbols, f.PriceScale); err != nil {
		return Loaded{}, err
	}
	if err := out.resolveManager(f); err != nil {
		return Loaded{}, err
	}
	return out, nil
}

// Venue returns the resolved venue by id.
func (l Loaded) Venue(id schema.VenueID) (Venue, bool) {
	for _, v := range l.Venues {
		if v.ID == id {
			return v, true
		}
	}
	return Venue{}, false
}

func resolveFeed(f *FeedConfig) error {
	if f.Source == "" {
		f.Source = FeedPaper
	}
	switch f.Source {
	case FeedPaper:
	case FeedReplay:
		if f.ReplayDir == "" {
			return invalid("replay feed needs replayDir")
		}
	default:
		return invalid("feed source %q", f.Source)
	}
	if f.Interval == 0 {
		f.Interval = Duration(defaultFeedInterval)
	}
	if f.Interval < 0 || f.ReplaySpeed < 0 {
		return invalid("feed interval %s, replay speed %v", f.Interval.Std(), f.ReplaySpeed)
	}
	if f.QueueSize <= 0 {
		f.QueueSize = defaultQueueSize
	}
	if f.Generator.BasePrice == 0 {
		f.Generator.BasePrice = defaultBasePrice
	}
	return nil
}

func resolveRisk(r RiskConfig, scale int) (risk.Config, error) {
	notional, err := scaled(r.MaxOrderNotional, scale)
	if err != nil {
		return risk.Config{}, errors.Wrap(err, "risk maxOrderNotional")
	}
	if r.MaxOrderQty < 0 || r.OrderRateLimit < 0 || r.OrderRateWindow < 0 || r.MaxPriceDeviationBps < 0 {
		return risk.Config{}, invalid("negative risk limit")
	}
	if r.OrderRateLimit > 0 && r.OrderRateWindow == 0 {
		return risk.Config{}, invalid("orderRateLimit needs orderRateWindow")
	}
	return risk.Config{
		KillSwitch:           r.KillSwitch,
		MaxOrderQty:          schema.Quantity(r.MaxOrderQty),
		MaxOrderNotional:     notional,
		OrderRateLimit:       r.OrderRateLimit,
		OrderRateWindow:      r.OrderRateWindow.Std(),
		MaxPriceDeviationBps: r.MaxPriceDeviationBps,
	}, nil
}

func (l *Loaded) resolveVenues(venues []VenueConfig) error {
	if len(venues) == 0 {
		return invalid("no venues")
	}
	for _, vc := range venues {
		id, err := l.Registry.AddVenue(vc.Name)
		if err != nil {
			return errors.Wrapf(exception.ErrConfigInvalid, "venue %q: %v", vc.Name, err)
		}
		if l.Mode != og.ModeNone && vc.Account == "" {
			return invalid("venue %s has no account", vc.Name)
		}
		lat := vc.Latency
		if lat.Sequencing < 0 || lat.Live < 0 || lat.Reply < 0 || lat.Cancel < 0 {
			return invalid("venue %s has a negative latency", vc.Name)
		}
		cc := chaos.Config{
			Seed:          vc.Chaos.Seed,
			DropRate:      vc.Chaos.DropRate,
			DuplicateRate: vc.Chaos.DuplicateRate,
			ReorderWindow: vc.Chaos.ReorderWindow,
			MaxDelay:      vc.Chaos.MaxDelay.Std(),
		}
		if err := cc.Validate(); err != nil {
			return errors.Wrapf(err, "venue %s chaos", vc.Name)
		}
		l.Venues = append(l.Venues, Venue{
			ID:      id,
			Name:    vc.Name,
			Account: vc.Account,
			Data:    vc.Data,
			Sim: sim.Config{
				Venue: id,
				Latency: sim.Latency{
					Sequencing: lat.Sequencing.Std(),
					Live:       lat.Live.Std(),
					Reply:      lat.Reply.Std(),
					Cancel:     lat.Cancel.Std(),
				},
				RequireQuote: vc.RequireQuote,
				Locates:      make(map[schema.SymbolID]int64),
				Chaos:        cc,
			},
		})
	}
	return nil
}

func (l *Loaded) resolveSymbols(symbols []SymbolConfig, scale int) error {
	if len(symbols) == 0 {
		return invalid("no symbols")
	}
	for _, sc := range symbols {
		venueID, ok := l.Registry.VenueIDByName(sc.Venue)
		if !ok {
			return errors.Wrapf(exception.ErrConfigUnknownVenue, "symbol %s venue %q", sc.Name, sc.Venue)
		}
		id, err := l.Registry.AddSymbol(sc.Name, venueID)
		if err != nil {
			return errors.Wrapf(exception.ErrConfigInvalid, "symbol %q: %v", sc.Name, err)
		}
		if sc.MaxOrderQty < 0 || sc.Locates < 0 {
			return invalid("symbol %s has a negative limit", sc.Name)
		}
		notional, err := scaled(sc.MaxNotional, scale)
		if err != nil {
			return errors.Wrapf(err, "symbol %s maxNotional", sc.Name)
		}
		if sc.MaxOrderQty > 0 || notional > 0 {
			l.SymbolLimits[id] = risk.SymbolLimits{
				MaxOrderQty:      schema.Quantity(sc.MaxOrderQty),
				MaxOrderNotional: notional,
			}
		}
		for i := range l.Venues {
			l.Venues[i].Sim.Locates[id] = sc.Locates
		}
	}
	return nil
}

func (l *Loaded) resolveManager(f File) error {
	l.Manager = og.Config{
		Mode:        l.Mode,
		ListenOnly:  f.ListenOnly,
		FeeOptimize: f.FeeOptimize,
		FeeRoutes:   make(map[schema.VenueID]og.FeeRoute),
		Accounts:    make(map[schema.VenueID]string),
	}
	for _, v := range l.Venues {
		l.Manager.Accounts[v.ID] = v.Account
	}
	for _, fr := range f.FeeRoutes {
		from, ok := l.Registry.VenueIDByName(fr.From)
		if !ok {
			return errors.Wrapf(exception.ErrConfigUnknownVenue, "fee route from %q", fr.From)
		}
		to, ok := l.Registry.VenueIDByName(fr.To)
		if !ok {
			return errors.Wrapf(exception.ErrConfigUnknownVenue, "fee route to %q", fr.To)
		}
		if from == to {
			return invalid("fee route %s routes to itself", fr.From)
		}
		flag, ok := parseRouteFlag(fr.Flag)
		if !ok {
			return invalid("fee route flag %q", fr.Flag)
		}
		l.Manager.FeeRoutes[from] = og.FeeRoute{Venue: to, Flag: flag}
	}
	return nil
}

func parseRouteFlag(s string) (og.RouteFlag, bool) {
	switch strings.ToLower(s) {
	case "", "default":
		return og.RouteDefault, true
	case "postonly":
		return og.RoutePostOnly, true
	case "midpoint":
		return og.RouteMidpoint, true
	case "retail":
		return og.RouteRetail, true
	default:
		return og.RouteDefault, false
	}
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(exception.ErrConfigInvalid, format, args...)
}
