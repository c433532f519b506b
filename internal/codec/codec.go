// Package codec encodes event payloads into the little-endian layouts the
// recorder writes and replays. Feed payloads have a fixed size; text
// payloads end with a length-prefixed string.
package codec

import (
	"fmt"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Encode writes the encoding of p into dst, reusing its capacity.
func Encode(dst []byte, p schema.Payload) ([]byte, error) {
	switch v := p.(type) {
	case schema.BookChange:
		return EncodeBookChange(dst, v), nil
	case schema.Execution:
		return EncodeExecution(dst, v), nil
	case schema.CrossTrade:
		return EncodeCrossTrade(dst, v), nil
	case schema.TapePrint:
		return EncodeTapePrint(dst, v), nil
	case schema.UserMessage:
		return EncodeUserMessage(dst, v)
	case schema.SymbolStatus:
		return EncodeSymbolStatus(dst, v)
	case schema.Stop:
		return EncodeStop(dst, v)
	case schema.Heartbeat, nil:
		return dst[:0], nil
	default:
		return nil, fmt.Errorf("codec: encode %T: %w", p, exception.ErrUnsupportedKind)
	}
}

// Decode parses src as the payload of kind. The result never aliases src.
func Decode(kind schema.Kind, src []byte) (schema.Payload, error) {
	var (
		p  schema.Payload
		ok bool
	)
	switch kind {
	case schema.KindBookChange:
		p, ok = DecodeBookChange(src)
	case schema.KindExecution, schema.KindHiddenExecution:
		p, ok = DecodeExecution(src)
	case schema.KindCrossTrade:
		p, ok = DecodeCrossTrade(src)
	case schema.KindTapePrint:
		p, ok = DecodeTapePrint(src)
	case schema.KindUserMessage:
		p, ok = DecodeUserMessage(src)
	case schema.KindSymbolStatus:
		p, ok = DecodeSymbolStatus(src)
	case schema.KindStop:
		p, ok = DecodeStop(src)
	case schema.KindHeartbeat:
		p, ok = schema.Heartbeat{}, true
	default:
		return nil, fmt.Errorf("codec: decode kind %d: %w", kind, exception.ErrUnsupportedKind)
	}
	if !ok {
		return nil, fmt.Errorf("codec: decode %s of %d bytes: %w", kind, len(src), exception.ErrPayloadTruncated)
	}
	return p, nil
}

// KindOf returns the natural kind of a payload. Hidden executions share the
// Execution payload and must be tagged by the caller.
func KindOf(p schema.Payload) schema.Kind {
	switch p.(type) {
	case schema.BookChange:
		return schema.KindBookChange
	case schema.Execution:
		return schema.KindExecution
	case schema.CrossTrade:
		return schema.KindCrossTrade
	case schema.TapePrint:
		return schema.KindTapePrint
	case schema.UserMessage:
		return schema.KindUserMessage
	case schema.SymbolStatus:
		return schema.KindSymbolStatus
	case schema.Stop:
		return schema.KindStop
	case schema.Heartbeat:
		return schema.KindHeartbeat
	default:
		return schema.KindUnknown
	}
}
