package og

import (
	"fmt"

	"tradecore/internal/alert"
	"tradecore/internal/schema"
)

// BreachPolicy selects what happens once the reject threshold is exceeded.
type BreachPolicy uint8

const (
	// BreachAlert only raises critical alerts.
	BreachAlert BreachPolicy = iota
	// BreachHalt also invokes the halt hook on the first breach.
	BreachHalt
)

func (p BreachPolicy) String() string {
	switch p {
	case BreachAlert:
		return "alert"
	case BreachHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// ParseBreachPolicy parses "alert" or "halt". Empty means alert.
func ParseBreachPolicy(s string) (BreachPolicy, bool) {
	switch s {
	case "", "alert":
		return BreachAlert, true
	case "halt":
		return BreachHalt, true
	default:
		return BreachAlert, false
	}
}

// RejectInfo identifies the reject being recorded.
type RejectInfo struct {
	Symbol  string
	Venue   string
	OrderID uint32
	Reason  RejectReason
	Time    schema.Timeval
}

// RejectGuard counts non-benign rejects for the whole run. Once the count
// exceeds the threshold every further reject raises a critical alert.
// A negative threshold disables it.
type RejectGuard struct {
	threshold int
	policy    BreachPolicy
	alerts    alert.Alerter
	onHalt    func(reason string)

	count  int
	halted bool
}

// NewRejectGuard builds a guard. alerts may be nil.
func NewRejectGuard(threshold int, policy BreachPolicy, alerts alert.Alerter) *RejectGuard {
	if alerts == nil {
		alerts = alert.LogSink{}
	}
	return &RejectGuard{threshold: threshold, policy: policy, alerts: alerts}
}

// SetHaltHook installs the function called under BreachHalt.
func (g *RejectGuard) SetHaltHook(fn func(reason string)) {
	g.onHalt = fn
}

// Record counts one reject and reports whether the guard is alerting.
// Benign rejects are not counted.
func (g *RejectGuard) Record(info RejectInfo) bool {
	if info.Reason.Benign() {
		return false
	}
	g.count++
	if !g.Alerting() {
		return false
	}

	g.alerts.Alert(alert.Alert{
		Severity: alert.SeverityCritical,
		Code:     alert.CodeRejectThreshold,
		Message:  fmt.Sprintf("reject count %d exceeds threshold %d", g.count, g.threshold),
		Symbol:   info.Symbol,
		Venue:    info.Venue,
		OrderID:  info.OrderID,
		Reason:   info.Reason.String(),
		Count:    g.count,
		Time:     info.Time,
	})
	if g.policy == BreachHalt && !g.halted && g.onHalt != nil {
		g.halted = true
		g.onHalt(fmt.Sprintf("reject threshold %d exceeded", g.threshold))
	}
	return true
}

// Alerting reports whether the count is above the threshold.
func (g *RejectGuard) Alerting() bool {
	return g.threshold >= 0 && g.count > g.threshold
}

// Count returns the number of non-benign rejects recorded.
func (g *RejectGuard) Count() int {
	return g.count
}

// Threshold returns the configured threshold.
func (g *RejectGuard) Threshold() int {
	return g.threshold
}
