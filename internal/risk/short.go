package risk

import "tradecore/internal/schema"

// LocateBuffer is held back from the locate quota on every short check.
const LocateBuffer = 100

// Marking is the regulatory sale marking of an order.
type Marking uint8

const (
	MarkingAuto Marking = iota
	MarkingBuy
	MarkingLong
	MarkingShort
	MarkingShortExempt
)

func (m Marking) String() string {
	switch m {
	case MarkingAuto:
		return "auto"
	case MarkingBuy:
		return "buy"
	case MarkingLong:
		return "long"
	case MarkingShort:
		return "short"
	case MarkingShortExempt:
		return "short_exempt"
	default:
		return "unknown"
	}
}

// ShortCheck is the input of ResolveMarking.
type ShortCheck struct {
	Side      schema.Side
	Size      schema.Quantity
	Requested Marking
	Position  int64
	Locates   int64
	// EnforceLocates is only set when orders route to a live venue.
	EnforceLocates bool
}

// ResolveMarking computes the marking a sell must carry from the current
// position. It returns false when the order would sell short beyond the
// available locates less LocateBuffer.
func ResolveMarking(c ShortCheck) (Marking, bool) {
	if c.Side == schema.SideBuy {
		return MarkingBuy, true
	}
	if c.Requested == MarkingShortExempt {
		return MarkingShortExempt, true
	}

	long := c.Position
	if long < 0 {
		long = 0
	}
	short := int64(c.Size) - long
	if short <= 0 && c.Requested != MarkingShort {
		return MarkingLong, true
	}
	if short <= 0 {
		short = int64(c.Size)
	}
	if c.EnforceLocates && short > c.Locates-LocateBuffer {
		return MarkingShort, false
	}
	return MarkingShort, true
}
