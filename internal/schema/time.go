package schema

import (
	"math"
	"strconv"
	"time"
)

// Timeval is a wall-clock instant in nanoseconds since the Unix epoch (UTC).
type Timeval int64

// NoTime marks an instant that never comes. It compares after every real time.
const NoTime = Timeval(math.MaxInt64)

// FromTime converts a time.Time to a Timeval.
func FromTime(t time.Time) Timeval {
	return Timeval(t.UnixNano())
}

// Now returns the current wall-clock time.
func Now() Timeval {
	return FromTime(time.Now().UTC())
}

// IsNone reports whether tv is the NoTime sentinel.
func (tv Timeval) IsNone() bool {
	return tv == NoTime
}

// Time converts tv back to a time.Time in UTC.
func (tv Timeval) Time() time.Time {
	return time.Unix(0, int64(tv)).UTC()
}

// Add returns tv shifted by d. NoTime stays NoTime.
func (tv Timeval) Add(d time.Duration) Timeval {
	if tv.IsNone() {
		return tv
	}
	return tv + Timeval(d)
}

// Sub returns the duration tv-u.
func (tv Timeval) Sub(u Timeval) time.Duration {
	return time.Duration(tv - u)
}

// SecondsSinceMidnight returns the whole seconds elapsed since local midnight in loc.
func (tv Timeval) SecondsSinceMidnight(loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	t := tv.Time().In(loc)
	return int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// Day returns the local calendar day of tv formatted as YYYYMMDD.
func (tv Timeval) Day(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return tv.Time().In(loc).Format("20060102")
}

func (tv Timeval) String() string {
	if tv.IsNone() {
		return "never"
	}
	buf := make([]byte, 0, 40)
	buf = tv.Time().AppendFormat(buf, "15:04:05.000000")
	buf = append(buf, '(')
	buf = strconv.AppendInt(buf, int64(tv), 10)
	buf = append(buf, ')')
	return string(buf)
}
