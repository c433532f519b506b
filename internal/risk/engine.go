package risk

import (
	"time"

	"tradecore/internal/schema"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Reason explains why an order was denied. ReasonNone means allowed.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonMaxNotional
	ReasonPriceBand
	ReasonInvalidSize
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonPriceBand:
		return "price_band"
	case ReasonInvalidSize:
		return "invalid_size"
	default:
		return "unknown"
	}
}

// Config defines run-wide limits. Zero disables a limit.
type Config struct {
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          schema.Quantity `json:"maxOrderQty"`
	MaxOrderNotional     int64           `json:"maxOrderNotional"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// SymbolLimits override the run-wide limits for one symbol.
type SymbolLimits struct {
	MaxOrderQty      schema.Quantity
	MaxOrderNotional int64
}

// Request is the order intent being evaluated.
type Request struct {
	Symbol         schema.SymbolID
	Side           schema.Side
	Size           schema.Quantity
	Price          schema.Price
	ReferencePrice schema.Price
	Now            schema.Timeval
}

// Engine evaluates pre-trade risk. It is not safe for concurrent use.
type Engine struct {
	cfg             Config
	limits          map[schema.SymbolID]SymbolLimits
	rateWindowStart schema.Timeval
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, limits: make(map[schema.SymbolID]SymbolLimits)}
}

// SetSymbolLimits installs per-symbol limits.
func (e *Engine) SetSymbolLimits(symbol schema.SymbolID, limits SymbolLimits) {
	e.limits[symbol] = limits
}

// SetKillSwitch denies every subsequent order while on.
func (e *Engine) SetKillSwitch(on bool) {
	e.cfg.KillSwitch = on
}

// Evaluate applies the checks in order and returns the first failing reason.
func (e *Engine) Evaluate(req Request) Reason {
	if e.cfg.KillSwitch {
		return ReasonKillSwitch
	}
	if req.Size <= 0 {
		return ReasonInvalidSize
	}

	now := req.Now
	if now == 0 {
		now = schema.Now()
	}
	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		if e.rateWindowStart == 0 || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return ReasonRateLimit
		}
	}

	maxQty, maxNotional := e.cfg.MaxOrderQty, e.cfg.MaxOrderNotional
	if l, ok := e.limits[req.Symbol]; ok {
		if l.MaxOrderQty > 0 {
			maxQty = l.MaxOrderQty
		}
		if l.MaxOrderNotional > 0 {
			maxNotional = l.MaxOrderNotional
		}
	}

	if maxQty > 0 && req.Size > maxQty {
		return ReasonMaxQty
	}

	if e.cfg.MaxPriceDeviationBps > 0 && req.Price > 0 && req.ReferencePrice > 0 {
		diff := absInt64(int64(req.Price) - int64(req.ReferencePrice))
		if exceedsDeviation(diff, int64(req.ReferencePrice), e.cfg.MaxPriceDeviationBps) {
			return ReasonPriceBand
		}
	}

	notional, overflow := mulNotional(req.Price, req.Size)
	if overflow {
		return ReasonMaxNotional
	}
	if maxNotional > 0 && notional > maxNotional {
		return ReasonMaxNotional
	}
	return ReasonNone
}

func mulNotional(price schema.Price, qty schema.Quantity) (int64, bool) {
	p := absInt64(int64(price))
	q := absInt64(int64(qty))
	if p == 0 || q == 0 {
		return 0, false
	}
	if p > maxInt64/q {
		return 0, true
	}
	return p * q, false
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func exceedsDeviation(diff int64, ref int64, bps int64) bool {
	if diff <= 0 || ref <= 0 || bps <= 0 {
		return false
	}
	if diff > maxInt64/10000 {
		return true
	}
	lhs := diff * 10000
	if ref > maxInt64/bps {
		return true
	}
	rhs := ref * bps
	return lhs > rhs
}
