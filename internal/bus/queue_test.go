package bus

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

func msg(seq uint64) schema.Event {
	return schema.Event{
		Header:  schema.NewHeader(schema.FamilyInternal, schema.KindUserMessage, 0, seq, 0, 0),
		Payload: schema.UserMessage{Text: "m"},
	}
}

func TestTryPublishFullAndClosed(t *testing.T) {
	m := obs.NewMetrics()
	q := NewQueue(2, m)
	require.NoError(t, q.TryPublish(msg(1)))
	require.NoError(t, q.TryPublish(msg(2)))
	require.ErrorIs(t, q.TryPublish(msg(3)), ErrQueueFull)

	q.Close()
	q.Close()
	require.ErrorIs(t, q.TryPublish(msg(4)), ErrQueueClosed)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.QueueDrops)
	assert.Equal(t, uint64(1), snap.QueueClosed)

	ctx := context.Background()
	ev, drained, err := q.Next(ctx, schema.NoTime)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.Header.Seq)
	assert.False(t, drained)

	ev, drained, err = q.Next(ctx, schema.NoTime)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ev.Header.Seq)
	assert.True(t, drained)

	_, _, err = q.Next(ctx, schema.NoTime)
	require.ErrorIs(t, err, io.EOF)
}

func TestNextHeartbeatsAtTimer(t *testing.T) {
	now := schema.FromTime(time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC))
	q := NewQueue(4, nil).WithClock(func() schema.Timeval { return now })

	past := now.Add(-time.Second)
	ev, drained, err := q.Next(context.Background(), past)
	require.NoError(t, err)
	assert.Equal(t, schema.KindHeartbeat, ev.Header.Kind)
	assert.Equal(t, past, ev.Header.TsRecv)
	assert.True(t, drained)

	soon := now.Add(10 * time.Millisecond)
	ev, _, err = q.Next(context.Background(), soon)
	require.NoError(t, err)
	assert.Equal(t, soon, ev.Header.TsEvent)
}

func TestNextPrefersQueuedEvents(t *testing.T) {
	q := NewQueue(4, nil)
	require.NoError(t, q.TryPublish(msg(1)))
	ev, _, err := q.Next(context.Background(), schema.Timeval(1))
	require.NoError(t, err)
	assert.Equal(t, schema.KindUserMessage, ev.Header.Kind)
}

func TestNextHonoursContext(t *testing.T) {
	q := NewQueue(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := q.Next(ctx, schema.NoTime)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentProducers(t *testing.T) {
	q := NewQueue(1024, nil)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.TryPublish(msg(uint64(i)))
			}
		}()
	}
	wg.Wait()
	q.Close()

	n := 0
	for {
		if _, _, err := q.Next(context.Background(), schema.NoTime); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		n++
	}
	assert.Equal(t, 400, n)
}
