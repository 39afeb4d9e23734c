package sse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDelivers(t *testing.T) {
	b := NewBroker(10)
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	b.Publish("snapshot_refreshed", `{"captured_at":1}`)

	evt := <-ch
	require.Equal(t, uint64(1), evt.ID)
	require.Equal(t, "snapshot_refreshed", evt.Type)
	require.Equal(t, `{"captured_at":1}`, evt.Data)
}

func TestReplayAfter(t *testing.T) {
	b := NewBroker(4)
	for i := 0; i < 3; i++ {
		b.Publish("tick", "{}")
	}

	events, ok := b.replayAfter(1)
	require.True(t, ok)
	require.Len(t, events, 2)
	require.Equal(t, uint64(2), events[0].ID)
	require.Equal(t, uint64(3), events[1].ID)

	events, ok = b.replayAfter(3)
	require.True(t, ok)
	require.Empty(t, events)
}

func TestReplayAfterEviction(t *testing.T) {
	b := NewBroker(4)
	for i := 0; i < 10; i++ {
		b.Publish("tick", "{}")
	}

	// Events 1-6 have been evicted; a client at id 2 cannot catch up.
	_, ok := b.replayAfter(2)
	require.False(t, ok)

	// A client at the buffer's edge still can.
	events, ok := b.replayAfter(6)
	require.True(t, ok)
	require.Len(t, events, 4)
	require.Equal(t, uint64(7), events[0].ID)
}

func TestSubscriberCount(t *testing.T) {
	b := NewBroker(4)
	require.Equal(t, 0, b.SubscriberCount())

	ch1 := b.subscribe()
	ch2 := b.subscribe()
	require.Equal(t, 2, b.SubscriberCount())

	b.unsubscribe(ch1)
	b.unsubscribe(ch2)
	require.Equal(t, 0, b.SubscriberCount())
}
