package timer

import (
	"container/heap"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/dispatch"
	"tradecore/internal/schema"
)

// Timer is either periodic (Period > 0, fires at origin+Phase+k*Period) or
// a one-shot firing once at At. Equal timers collapse into one entry.
type Timer struct {
	Period time.Duration
	Phase  time.Duration
	At     schema.Timeval
}

// Every returns a periodic timer.
func Every(period, phase time.Duration) Timer {
	return Timer{Period: period, Phase: phase}
}

// Once returns a one-shot timer.
func Once(at schema.Timeval) Timer {
	return Timer{At: at}
}

// OneShot reports whether t fires only once.
func (t Timer) OneShot() bool {
	return t.Period == 0
}

func (t Timer) valid() bool {
	if t.Period < 0 {
		return false
	}
	if t.OneShot() {
		return t.At != 0 && !t.At.IsNone()
	}
	return true
}

// NextAfter returns the first fire time strictly after tv, boundaries being
// measured from origin. One-shot timers return their time while it is still
// ahead of tv and schema.NoTime afterwards.
func (t Timer) NextAfter(origin, tv schema.Timeval) schema.Timeval {
	if t.OneShot() {
		if t.At > tv {
			return t.At
		}
		return schema.NoTime
	}
	base := origin.Add(t.Phase)
	if tv < base {
		return base
	}
	k := int64(tv-base)/int64(t.Period) + 1
	return base + schema.Timeval(k*int64(t.Period))
}

// TimeUpdate is published when a timer fires.
type TimeUpdate struct {
	Timer Timer
	At    schema.Timeval
}

// Scheduler is a min-priority queue of next fire times over registered timers.
type Scheduler struct {
	origin     schema.Timeval
	now        schema.Timeval
	registered map[Timer]struct{}
	queue      entryHeap
	seq        uint64
	out        *dispatch.Dispatcher[TimeUpdate]
}

// NewScheduler creates a scheduler whose periodic boundaries are aligned to
// origin and which publishes fired timers through out.
func NewScheduler(origin schema.Timeval, out *dispatch.Dispatcher[TimeUpdate]) *Scheduler {
	return &Scheduler{
		origin:     origin,
		now:        origin,
		registered: make(map[Timer]struct{}),
		out:        out,
	}
}

// Now returns the latest time passed to CheckTimes.
func (s *Scheduler) Now() schema.Timeval {
	return s.now
}

// Len returns the number of scheduled entries.
func (s *Scheduler) Len() int {
	return len(s.queue)
}

// AddTimer registers t and schedules its first occurrence after the current
// time. Registering an equal timer again is a no-op. It reports whether
// anything was scheduled.
func (s *Scheduler) AddTimer(t Timer) bool {
	if !t.valid() {
		logs.Warnf("timer: ignore invalid timer %+v", t)
		return false
	}
	if _, ok := s.registered[t]; ok {
		return false
	}
	next := t.NextAfter(s.origin, s.now)
	if next.IsNone() {
		return false
	}
	s.registered[t] = struct{}{}
	s.push(t, next)
	return true
}

// NextFire returns the earliest scheduled fire time or schema.NoTime.
func (s *Scheduler) NextFire() schema.Timeval {
	if len(s.queue) == 0 {
		return schema.NoTime
	}
	return s.queue[0].at
}

// CheckTimes fires every timer due at or before now in ascending order and
// returns how many fired. Periodic timers are rescheduled before their
// listeners run.
func (s *Scheduler) CheckTimes(now schema.Timeval) int {
	if now > s.now {
		s.now = now
	}
	fired := 0
	for len(s.queue) > 0 && s.queue[0].at <= now {
		e := heap.Pop(&s.queue).(scheduled)
		if e.timer.OneShot() {
			delete(s.registered, e.timer)
		} else {
			s.push(e.timer, e.timer.NextAfter(s.origin, e.at))
		}
		fired++
		if s.out != nil {
			s.out.Dispatch(TimeUpdate{Timer: e.timer, At: e.at})
		}
	}
	return fired
}

// Advance moves the current time forward without firing. Timers already
// due stay queued for the next CheckTimes.
func (s *Scheduler) Advance(now schema.Timeval) {
	if now > s.now {
		s.now = now
	}
}

// Start anchors the scheduler at the first observed time. A start behind
// the current time, as in a replay of recorded history, moves the origin
// back to it so periodic boundaries follow the replayed clock. Otherwise it
// behaves like Skip.
func (s *Scheduler) Start(first schema.Timeval) {
	if first >= s.now {
		s.Skip(first)
		return
	}
	logs.Infof("timer: rebase origin %s back to %s", s.origin, first)
	s.origin = first
	s.now = first
	s.reschedule()
}

// Skip moves the current time forward to now without firing anything.
// Every timer is rescheduled to its first occurrence after now; one-shot
// timers already in the past are dropped.
func (s *Scheduler) Skip(now schema.Timeval) {
	if now <= s.now {
		return
	}
	s.now = now
	s.reschedule()
}

func (s *Scheduler) reschedule() {
	pending := s.queue
	s.queue = make(entryHeap, 0, len(pending))
	for _, e := range pending {
		next := e.timer.NextAfter(s.origin, s.now)
		if next.IsNone() {
			delete(s.registered, e.timer)
			continue
		}
		s.push(e.timer, next)
	}
}

func (s *Scheduler) push(t Timer, at schema.Timeval) {
	s.seq++
	heap.Push(&s.queue, scheduled{timer: t, at: at, seq: s.seq})
}

type scheduled struct {
	timer Timer
	at    schema.Timeval
	seq   uint64
}

type entryHeap []scheduled

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(scheduled)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
