package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func TestRoundTripEveryKind(t *testing.T) {
	testCases := []struct {
		desc    string
		kind    schema.Kind
		payload schema.Payload
		size    int
	}{
		{"book change", schema.KindBookChange, schema.BookChange{Symbol: 7, Side: schema.SideSell, Size: -300, Price: 10_125, OrderID: 99}, BookChangePayloadSize},
		{"hidden execution", schema.KindHiddenExecution, schema.Execution{Symbol: 7, Side: schema.SideBuy, Size: 10, Price: 10_100, OrderID: 1, MatchID: 2}, ExecutionPayloadSize},
		{"cross", schema.KindCrossTrade, schema.CrossTrade{Symbol: 3, Size: 5000, Price: 9_900, MatchID: 8}, CrossTradePayloadSize},
		{"tape", schema.KindTapePrint, schema.TapePrint{Symbol: 3, Venue: 4, Size: 100, Price: 9_901, Conditions: 0x12}, TapePrintPayloadSize},
		{"user message", schema.KindUserMessage, schema.UserMessage{Channel: 0, Symbol: 3, Text: "halt news pending"}, 8 + len("halt news pending")},
		{"symbol status", schema.KindSymbolStatus, schema.SymbolStatus{Symbol: 3, Halted: true, Reason: "LULD"}, 8 + 4},
		{"stop", schema.KindStop, schema.Stop{Status: schema.StopComplete, Reason: "eod"}, 4 + 3},
		{"heartbeat", schema.KindHeartbeat, schema.Heartbeat{}, 0},
	}
	buf := make([]byte, 0, 64)
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			enc, err := Encode(buf, tc.payload)
			require.NoError(t, err)
			if len(enc) != tc.size {
				t.Fatalf("encoded size: got %d want %d", len(enc), tc.size)
			}
			dec, err := Decode(tc.kind, enc)
			require.NoError(t, err)
			assert.Equal(t, tc.payload, dec)
		})
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	enc := EncodeExecution(nil, schema.Execution{Symbol: 1, Size: 1, Price: 1})
	_, err := Decode(schema.KindExecution, enc[:ExecutionPayloadSize-1])
	require.ErrorIs(t, err, exception.ErrPayloadTruncated)

	msg, err := EncodeUserMessage(nil, schema.UserMessage{Text: "resume"})
	require.NoError(t, err)
	_, err = Decode(schema.KindUserMessage, msg[:len(msg)-1])
	require.ErrorIs(t, err, exception.ErrPayloadTruncated)

	_, err = Decode(schema.KindUnknown, nil)
	require.ErrorIs(t, err, exception.ErrUnsupportedKind)
}

func TestEncodeRejectsOversizedText(t *testing.T) {
	_, err := Encode(nil, schema.UserMessage{Text: strings.Repeat("x", 1<<16)})
	require.ErrorIs(t, err, exception.ErrPayloadTooLong)
}

func TestReusedBufferIsCleared(t *testing.T) {
	buf := make([]byte, BookChangePayloadSize)
	for i := range buf {
		buf[i] = 0xff
	}
	enc := EncodeBookChange(buf, schema.BookChange{Symbol: 1, Side: schema.SideBuy, Size: 1, Price: 1})
	assert.Equal(t, byte(0), enc[5], "padding must be zeroed")
	dec, ok := DecodeBookChange(enc)
	require.True(t, ok)
	assert.Equal(t, uint64(0), dec.OrderID)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, schema.KindExecution, KindOf(schema.Execution{}))
	assert.Equal(t, schema.KindStop, KindOf(schema.Stop{}))
	assert.Equal(t, schema.KindUnknown, KindOf(nil))
}
