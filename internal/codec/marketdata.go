package codec

import (
	"encoding/binary"

	"tradecore/internal/schema"
)

const (
	BookChangePayloadSize = 32
	ExecutionPayloadSize  = 40
	CrossTradePayloadSize = 32
	TapePrintPayloadSize  = 24
)

func sized(dst []byte, n int) []byte {
	if cap(dst) < n {
		return make([]byte, n)
	}
	dst = dst[:n]
	clear(dst)
	return dst
}

// EncodeBookChange serializes a book change into a fixed-size payload.
func EncodeBookChange(dst []byte, p schema.BookChange) []byte {
	dst = sized(dst, BookChangePayloadSize)
	binary.LittleEndian.PutUint32(dst[0:4], uint32(p.Symbol))
	dst[4] = byte(p.Side)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(p.Size))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(p.Price))
	binary.LittleEndian.PutUint64(dst[24:32], p.OrderID)
	return dst
}

// DecodeBookChange parses a fixed-size book change payload.
func DecodeBookChange(src []byte) (schema.BookChange, bool) {
	if len(src) < BookChangePayloadSize {
		return schema.BookChange{}, false
	}
	return schema.BookChange{
		Symbol:  schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Side:    schema.Side(src[4]),
		Size:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Price:   schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		OrderID: binary.LittleEndian.Uint64(src[24:32]),
	}, true
}

// EncodeExecution serializes a visible or hidden execution.
func EncodeExecution(dst []byte, p schema.Execution) []byte {
	dst = sized(dst, ExecutionPayloadSize)
	binary.LittleEndian.PutUint32(dst[0:4], uint32(p.Symbol))
	dst[4] = byte(p.Side)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(p.Size))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(p.Price))
	binary.LittleEndian.PutUint64(dst[24:32], p.OrderID)
	binary.LittleEndian.PutUint64(dst[32:40], p.MatchID)
	return dst
}

// DecodeExecution parses a fixed-size execution payload.
func DecodeExecution(src []byte) (schema.Execution, bool) {
	if len(src) < ExecutionPayloadSize {
		return schema.Execution{}, false
	}
	return schema.Execution{
		Symbol:  schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Side:    schema.Side(src[4]),
		Size:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Price:   schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		OrderID: binary.LittleEndian.Uint64(src[24:32]),
		MatchID: binary.LittleEndian.Uint64(src[32:40]),
	}, true
}

// EncodeCrossTrade serializes an auction cross.
func EncodeCrossTrade(dst []byte, p schema.CrossTrade) []byte {
	dst = sized(dst, CrossTradePayloadSize)
	binary.LittleEndian.PutUint32(dst[0:4], uint32(p.Symbol))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(p.Size))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(p.Price))
	binary.LittleEndian.PutUint64(dst[24:32], p.MatchID)
	return dst
}

// DecodeCrossTrade parses a fixed-size cross payload.
func DecodeCrossTrade(src []byte) (schema.CrossTrade, bool) {
	if len(src) < CrossTradePayloadSize {
		return schema.CrossTrade{}, false
	}
	return schema.CrossTrade{
		Symbol:  schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Size:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Price:   schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		MatchID: binary.LittleEndian.Uint64(src[24:32]),
	}, true
}

// EncodeTapePrint serializes a consolidated tape print.
func EncodeTapePrint(dst []byte, p schema.TapePrint) []byte {
	dst = sized(dst, TapePrintPayloadSize)
	binary.LittleEndian.PutUint32(dst[0:4], uint32(p.Symbol))
	dst[4] = byte(p.Venue)
	binary.LittleEndian.PutUint16(dst[6:8], p.Conditions)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(p.Size))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(p.Price))
	return dst
}

// DecodeTapePrint parses a fixed-size tape print payload.
func DecodeTapePrint(src []byte) (schema.TapePrint, bool) {
	if len(src) < TapePrintPayloadSize {
		return schema.TapePrint{}, false
	}
	return schema.TapePrint{
		Symbol:     schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Venue:      schema.VenueID(src[4]),
		Conditions: binary.LittleEndian.Uint16(src[6:8]),
		Size:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Price:      schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
	}, true
}
