package og

// OrderResult is the outcome of a placement, or the reason carried by a
// rejection update.
type OrderResult uint8

const (
	ResultGood OrderResult = iota
	ResultNoRoute
	ResultNoReason
	ResultUnshortable
	ResultHalted
	ResultRiskLimit
	ResultInvalidSymbol
	ResultInvalidPrice
	ResultInvalidSize
	ResultDuplicateID
	ResultVenueClosed
	ResultThrottled
	ResultWouldCross
	ResultShortRestricted
	ResultVenueReject
)

var resultNames = [...]string{
	ResultGood:            "good",
	ResultNoRoute:         "no_route",
	ResultNoReason:        "no_reason",
	ResultUnshortable:     "unshortable",
	ResultHalted:          "halted",
	ResultRiskLimit:       "risk_limit",
	ResultInvalidSymbol:   "invalid_symbol",
	ResultInvalidPrice:    "invalid_price",
	ResultInvalidSize:     "invalid_size",
	ResultDuplicateID:     "duplicate_id",
	ResultVenueClosed:     "venue_closed",
	ResultThrottled:       "throttled",
	ResultWouldCross:      "would_cross",
	ResultShortRestricted: "short_restricted",
	ResultVenueReject:     "venue_reject",
}

func (r OrderResult) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "unknown"
}

// OK reports whether the order was accepted.
func (r OrderResult) OK() bool {
	return r == ResultGood
}

// RejectReason is the reason code a transport reports for a rejection.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectUnknownSymbol
	RejectInvalidPrice
	RejectInvalidSize
	RejectDuplicateID
	RejectVenueClosed
	RejectThrottled
	RejectWouldCross
	RejectShortSaleRestricted
	RejectOther
)

var rejectNames = [...]string{
	RejectNone:                "none",
	RejectUnknownSymbol:       "unknown_symbol",
	RejectInvalidPrice:        "invalid_price",
	RejectInvalidSize:         "invalid_size",
	RejectDuplicateID:         "duplicate_id",
	RejectVenueClosed:         "venue_closed",
	RejectThrottled:           "throttled",
	RejectWouldCross:          "would_cross",
	RejectShortSaleRestricted: "short_sale_restricted",
	RejectOther:               "other",
}

func (r RejectReason) String() string {
	if int(r) < len(rejectNames) {
		return rejectNames[r]
	}
	return "unknown"
}

// Benign reports whether the reject is an expected outcome of a post-only
// or session-boundary order and must not count toward the reject guard.
func (r RejectReason) Benign() bool {
	return r == RejectWouldCross || r == RejectVenueClosed
}

var rejectResults = map[RejectReason]OrderResult{
	RejectNone:                ResultNoReason,
	RejectUnknownSymbol:       ResultInvalidSymbol,
	RejectInvalidPrice:        ResultInvalidPrice,
	RejectInvalidSize:         ResultInvalidSize,
	RejectDuplicateID:         ResultDuplicateID,
	RejectVenueClosed:         ResultVenueClosed,
	RejectThrottled:           ResultThrottled,
	RejectWouldCross:          ResultWouldCross,
	RejectShortSaleRestricted: ResultShortRestricted,
	RejectOther:               ResultVenueReject,
}

// MapReject translates a transport reason into a placement result.
func MapReject(r RejectReason) OrderResult {
	if res, ok := rejectResults[r]; ok {
		return res
	}
	return ResultVenueReject
}
