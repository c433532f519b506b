package schema

// Price is a scaled integer. The scale is defined by configuration.
type Price int64

// Quantity is a signed share count.
type Quantity int64

// Side describes order direction. On book updates SideBuy is the bid side.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) IsAvailable() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// DataKind describes the meaning of a normalized market data update.
type DataKind uint8

const (
	DataUnknown DataKind = iota
	DataBookChange
	DataVisibleTrade
	DataInvisibleTrade
)

// DataUpdate is a normalized trade or book event for one symbol.
type DataUpdate struct {
	Kind     DataKind
	Side     Side
	Venue    VenueID
	Symbol   SymbolID
	Size     Quantity
	Price    Price
	ID       uint64
	OriginTs Timeval
	LocalTs  Timeval
}

// Equal compares the identity fields of two updates. Price and timestamps are ignored.
func (u DataUpdate) Equal(o DataUpdate) bool {
	return u.Kind == o.Kind &&
		u.Venue == o.Venue &&
		u.Side == o.Side &&
		u.Symbol == o.Symbol &&
		u.Size == o.Size &&
		u.ID == o.ID
}

// TapeUpdate is a consolidated last-sale print.
type TapeUpdate struct {
	Symbol     SymbolID
	Venue      VenueID
	Size       Quantity
	Price      Price
	Conditions uint16
	OriginTs   Timeval
	LocalTs    Timeval
}

// Raw feed payloads. External decoders produce these; the coordinator normalizes them.

// BookChange adds (positive size) or removes (negative size) displayed depth.
type BookChange struct {
	Symbol  SymbolID
	Side    Side
	Size    Quantity
	Price   Price
	OrderID uint64
}

// Execution reports shares executed against a resting order.
type Execution struct {
	Symbol  SymbolID
	Side    Side
	Size    Quantity
	Price   Price
	OrderID uint64
	MatchID uint64
}

// CrossTrade reports an auction cross.
type CrossTrade struct {
	Symbol  SymbolID
	Size    Quantity
	Price   Price
	MatchID uint64
}

// TapePrint reports a trade disseminated on the consolidated tape.
type TapePrint struct {
	Symbol     SymbolID
	Venue      VenueID
	Size       Quantity
	Price      Price
	Conditions uint16
}

// UserMessage is an operator or strategy text message.
type UserMessage struct {
	Channel uint16
	Symbol  SymbolID
	Text    string
}

// SymbolStatus announces a trading halt or resumption for one symbol.
type SymbolStatus struct {
	Symbol SymbolID
	Halted bool
	Reason string
}

// Heartbeat carries no data; it only advances time.
type Heartbeat struct{}

// StopStatus is the terminal status of a coordinator run.
type StopStatus uint8

const (
	StopNone StopStatus = iota
	StopComplete
	StopStopped
	StopFailure
)

func (s StopStatus) String() string {
	switch s {
	case StopComplete:
		return "COMPLETE"
	case StopStopped:
		return "STOPPED"
	case StopFailure:
		return "FAILURE"
	default:
		return "NONE"
	}
}

// Stop asks the loop to end with the given status.
type Stop struct {
	Status StopStatus
	Reason string
}

func (BookChange) payload()   {}
func (Execution) payload()    {}
func (CrossTrade) payload()   {}
func (TapePrint) payload()    {}
func (UserMessage) payload()  {}
func (SymbolStatus) payload() {}
func (Heartbeat) payload()    {}
func (Stop) payload()         {}
