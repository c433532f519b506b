// Package alert carries monitoring signals (reject-threshold breaches,
// missing order wrappers). Alerts are never return values; they are fanned
// out to log, structured-log and broker sinks.
package alert

import (
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

// Severity of an alert.
type Severity uint8

const (
	SeverityWarning Severity = iota + 1
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Code names the condition that raised an alert.
type Code string

const (
	CodeRejectThreshold   Code = "reject_threshold"
	CodeWrapperNotFound   Code = "order_wrapper_not_found"
	CodeUnmappedVenue     Code = "unmapped_venue"
	CodeLateFill          Code = "late_fill"
	CodeSequenceExhausted Code = "sequence_exhausted"
)

// Alert is one monitoring signal.
type Alert struct {
	Severity Severity
	Code     Code
	Message  string
	Symbol   string
	Venue    string
	OrderID  uint32
	Reason   string
	Count    int
	Time     schema.Timeval
	RunID    string
}

// Alerter receives alerts. Implementations must not block the caller.
type Alerter interface {
	Alert(Alert)
}

// Func adapts a function to an Alerter.
type Func func(Alert)

func (f Func) Alert(a Alert) { f(a) }

// Fanout delivers every alert to each sink in order.
type Fanout []Alerter

func (f Fanout) Alert(a Alert) {
	for _, s := range f {
		if s != nil {
			s.Alert(a)
		}
	}
}

// WithRunID stamps every alert passing through with a run id.
func WithRunID(runID string, next Alerter) Alerter {
	return Func(func(a Alert) {
		if a.RunID == "" {
			a.RunID = runID
		}
		next.Alert(a)
	})
}

// LogSink writes alerts through the process logger.
type LogSink struct{}

func (LogSink) Alert(a Alert) {
	switch a.Severity {
	case SeverityCritical:
		logs.Errorf("[CRITICAL] %s: %s symbol=%s venue=%s order=%d reason=%s count=%d",
			a.Code, a.Message, a.Symbol, a.Venue, a.OrderID, a.Reason, a.Count)
	default:
		logs.Warnf("[%s] %s: %s symbol=%s venue=%s order=%d reason=%s",
			a.Severity, a.Code, a.Message, a.Symbol, a.Venue, a.OrderID, a.Reason)
	}
}

// Recorder keeps alerts in memory.
type Recorder struct {
	Alerts []Alert
}

func (r *Recorder) Alert(a Alert) {
	r.Alerts = append(r.Alerts, a)
}

// Count returns how many recorded alerts carry code.
func (r *Recorder) Count(code Code) int {
	n := 0
	for _, a := range r.Alerts {
		if a.Code == code {
			n++
		}
	}
	return n
}
