package codec

import (
	"encoding/binary"
	"math"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Text-carrying payloads end with a uint16 length and the raw bytes.

func appendText(dst []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return dst, exception.ErrPayloadTooLong
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

func readText(src []byte) (string, bool) {
	if len(src) < 2 {
		return "", false
	}
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	if len(src) < 2+n {
		return "", false
	}
	return string(src[2 : 2+n]), true
}

// EncodeUserMessage serializes channel, symbol and text.
func EncodeUserMessage(dst []byte, p schema.UserMessage) ([]byte, error) {
	dst = dst[:0]
	dst = binary.LittleEndian.AppendUint16(dst, p.Channel)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Symbol))
	return appendText(dst, p.Text)
}

func DecodeUserMessage(src []byte) (schema.UserMessage, bool) {
	if len(src) < 6 {
		return schema.UserMessage{}, false
	}
	text, ok := readText(src[6:])
	if !ok {
		return schema.UserMessage{}, false
	}
	return schema.UserMessage{
		Channel: binary.LittleEndian.Uint16(src[0:2]),
		Symbol:  schema.SymbolID(binary.LittleEndian.Uint32(src[2:6])),
		Text:    text,
	}, true
}

// EncodeSymbolStatus serializes a halt or resume announcement.
func EncodeSymbolStatus(dst []byte, p schema.SymbolStatus) ([]byte, error) {
	dst = dst[:0]
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Symbol))
	var halted byte
	if p.Halted {
		halted = 1
	}
	dst = append(dst, halted, 0)
	return appendText(dst, p.Reason)
}

func DecodeSymbolStatus(src []byte) (schema.SymbolStatus, bool) {
	if len(src) < 6 {
		return schema.SymbolStatus{}, false
	}
	reason, ok := readText(src[6:])
	if !ok {
		return schema.SymbolStatus{}, false
	}
	return schema.SymbolStatus{
		Symbol: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Halted: src[4] != 0,
		Reason: reason,
	}, true
}

// EncodeStop serializes a stop request.
func EncodeStop(dst []byte, p schema.Stop) ([]byte, error) {
	dst = dst[:0]
	dst = append(dst, byte(p.Status), 0)
	return appendText(dst, p.Reason)
}

func DecodeStop(src []byte) (schema.Stop, bool) {
	if len(src) < 2 {
		return schema.Stop{}, false
	}
	reason, ok := readText(src[2:])
	if !ok {
		return schema.Stop{}, false
	}
	return schema.Stop{Status: schema.StopStatus(src[0]), Reason: reason}, true
}
