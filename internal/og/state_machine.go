package og

import (
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var transitions = [...][]Tag{
	UpdateNone:        {UpdatePlacing},
	UpdatePlacing:     {UpdateConfirmed, UpdateRejected},
	UpdateConfirmed:   {UpdateCanceling, UpdateCanceled, UpdateFilled},
	UpdateRejected:    nil,
	UpdateCanceling:   {UpdateCanceled, UpdateCxlRejected, UpdateFilled},
	UpdateCanceled:    nil,
	UpdateCxlRejected: {UpdateCanceling, UpdateCanceled, UpdateFilled},
	UpdateFilled:      {UpdateFilled, UpdateCanceling, UpdateCanceled, UpdateCxlRejected},
}

// CanTransition reports whether to may directly follow from.
func CanTransition(from, to Tag) bool {
	if int(from) >= len(transitions) {
		return false
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// apply appends u after bridging the acknowledgements the venue skipped, and
// returns every update it appended. Nothing is appended on error.
func (o *Order) apply(u OrderUpdate) ([]OrderUpdate, error) {
	if o.current >= 0 && o.IsDone() {
		if o.repeats(u) {
			return nil, exception.ErrOrderStaleUpdate
		}
		return nil, exception.ErrOrderDone
	}
	if err := o.checkDuplicate(u); err != nil {
		return nil, err
	}

	bridge := o.bridgeFor(u.Tag)
	from := o.Last().Tag
	for _, tag := range bridge {
		if !CanTransition(from, tag) {
			return nil, exception.ErrOrderInvalidTransition
		}
		from = tag
	}
	if !CanTransition(from, u.Tag) {
		return nil, exception.ErrOrderInvalidTransition
	}

	appended := make([]OrderUpdate, 0, len(bridge)+1)
	for _, tag := range bridge {
		s := o.next(tag, u.Time)
		s.Synthetic = true
		o.push(s)
		appended = append(appended, o.Last())
	}
	o.push(u)
	if u.Tag == UpdateFilled {
		o.markExec(u.ExecID)
	}
	return append(appended, o.Last()), nil
}

// repeats reports whether u restates something already in the history, as
// a duplicated acknowledgement does.
func (o *Order) repeats(u OrderUpdate) bool {
	if u.Tag == UpdateFilled {
		return o.seenExec(u.ExecID)
	}
	return o.Latest(u.Tag).Happened()
}

func (o *Order) checkDuplicate(u OrderUpdate) error {
	switch u.Tag {
	case UpdatePlacing:
		if o.Placing().Happened() {
			return exception.ErrOrderStaleUpdate
		}
	case UpdateConfirmed:
		if o.Confirmed().Happened() {
			return exception.ErrOrderStaleUpdate
		}
	case UpdateCanceling:
		if o.CancelPending() {
			return exception.ErrOrderStaleUpdate
		}
	case UpdateCxlRejected:
		if !o.CancelPending() && o.Canceling().Happened() {
			return exception.ErrOrderStaleUpdate
		}
	case UpdateFilled:
		if o.seenExec(u.ExecID) {
			return exception.ErrOrderDuplicateExec
		}
		if u.Shares <= 0 {
			return exception.ErrOrderInvalidFill
		}
	}
	return nil
}

// bridgeFor lists the transitions that must be synthesized before tag can
// be recorded on the current history.
func (o *Order) bridgeFor(tag Tag) []Tag {
	last := o.Last().Tag
	var out []Tag

	needsOpen := tag == UpdateFilled || tag == UpdateCanceling || tag == UpdateCanceled || tag == UpdateCxlRejected
	needsPlacing := tag == UpdateConfirmed || tag == UpdateRejected || needsOpen

	if last == UpdateNone && needsPlacing {
		out = append(out, UpdatePlacing)
		last = UpdatePlacing
	}
	if last == UpdatePlacing && needsOpen {
		out = append(out, UpdateConfirmed)
		last = UpdateConfirmed
	}
	if tag == UpdateCxlRejected && !o.Canceling().Happened() {
		out = append(out, UpdateCanceling)
	}
	return out
}

// fillUpdate computes cumulative figures for an execution of shares.
func (o *Order) fillUpdate(shares schema.Quantity, price schema.Price, liq Liquidity, execID uint64, at schema.Timeval) OrderUpdate {
	u := o.next(UpdateFilled, at)
	filled := u.Filled + shares
	if limit := o.Size - u.Canceled; filled > limit {
		filled = limit
	}
	u.Shares = filled - u.Filled
	u.Filled = filled
	u.Price = price
	u.Liquidity = liq
	u.ExecID = execID
	return u
}

// cancelUpdate cancels every share not yet filled.
func (o *Order) cancelUpdate(at schema.Timeval) OrderUpdate {
	u := o.next(UpdateCanceled, at)
	canceled := o.Size - u.Filled
	if canceled < u.Canceled {
		canceled = u.Canceled
	}
	u.Shares = canceled - u.Canceled
	u.Canceled = canceled
	return u
}
