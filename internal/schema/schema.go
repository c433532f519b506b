package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 2

// Family identifies the protocol generation an event was decoded from.
// Related message kinds of different generations share one handler and
// only differ in how they are timestamped and flagged.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyLegacy
	FamilyCurrent
	FamilyConsolidated
	FamilyInternal
)

func (f Family) String() string {
	switch f {
	case FamilyLegacy:
		return "legacy"
	case FamilyCurrent:
		return "current"
	case FamilyConsolidated:
		return "consolidated"
	case FamilyInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Kind is the message-type tag of an event.
type Kind uint16

const (
	KindUnknown Kind = iota
	KindBookChange
	KindExecution
	KindHiddenExecution
	KindCrossTrade
	KindTapePrint
	KindUserMessage
	KindSymbolStatus
	KindHeartbeat
	KindStop
	_kindEnd
)

// KindCount is the number of defined kinds, including KindUnknown.
const KindCount = int(_kindEnd)

func (k Kind) String() string {
	switch k {
	case KindBookChange:
		return "book_change"
	case KindExecution:
		return "execution"
	case KindHiddenExecution:
		return "hidden_execution"
	case KindCrossTrade:
		return "cross_trade"
	case KindTapePrint:
		return "tape_print"
	case KindUserMessage:
		return "user_message"
	case KindSymbolStatus:
		return "symbol_status"
	case KindHeartbeat:
		return "heartbeat"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// EventHeader is the common metadata attached to every event.
type EventHeader struct {
	Family  Family
	Kind    Kind
	Version uint16
	Source  VenueID
	Flags   uint16
	Seq     uint64
	TsEvent Timeval
	TsRecv  Timeval
}

// NewHeader builds a header with the current schema version.
func NewHeader(family Family, kind Kind, source VenueID, seq uint64, tsEvent, tsRecv Timeval) EventHeader {
	return EventHeader{
		Family:  family,
		Kind:    kind,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// Event is one tagged input of the coordinator loop.
type Event struct {
	Header  EventHeader
	Payload Payload
}

// Payload is the closed set of event bodies. Only types of this package implement it.
type Payload interface {
	payload()
}
