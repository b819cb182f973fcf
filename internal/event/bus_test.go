package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(New(TypeProjectDestroyed, map[string]any{"project_id": 4}, "u1"))

	got := <-ch
	require.Equal(t, TypeProjectDestroyed, got.Type)
	require.Equal(t, "u1", got.ActorID)
	require.NotEmpty(t, got.ID)
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(New(TypeJobCompleted, i, ""))
	}
	require.Len(t, ch, subscriberBuffer)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-ch
	require.False(t, open)
	bus.Publish(New(TypeJobFailed, nil, ""))
}
