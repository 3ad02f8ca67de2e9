package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/eventfold"
)

func event(name string) eventfold.Event {
	return eventfold.Event{Context: "planning", Aggregate: eventfold.AggregateRef{Name: "peerGroup", ID: "pg-1"}, Name: name}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("records published events in order", func(t *testing.T) {
		bus := NewBus()

		require.NoError(t, bus.Publish(ctx, event("started")))
		require.NoError(t, bus.Publish(ctx, event("joined")))

		events := bus.Events()
		require.Len(t, events, 2)
		assert.Equal(t, "started", events[0].Name)
		assert.Equal(t, "joined", events[1].Name)
	})

	t.Run("fans out to subscribers", func(t *testing.T) {
		bus := NewBus()
		first := bus.Subscribe()
		second := bus.Subscribe()

		require.NoError(t, bus.Publish(ctx, event("started")))

		assert.Equal(t, "started", (<-first).Name)
		assert.Equal(t, "started", (<-second).Name)
	})

	t.Run("subscribers only see events published after subscribing", func(t *testing.T) {
		bus := NewBus()
		require.NoError(t, bus.Publish(ctx, event("started")))

		subscriber := bus.Subscribe()
		require.NoError(t, bus.Publish(ctx, event("joined")))

		assert.Equal(t, "joined", (<-subscriber).Name)
		select {
		case extra := <-subscriber:
			t.Fatalf("unexpected event %q", extra.Name)
		default:
		}
	})

	t.Run("cancelled context stops publishing", func(t *testing.T) {
		bus := NewBus()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		assert.ErrorIs(t, bus.Publish(cancelled, event("started")), context.Canceled)
		assert.Empty(t, bus.Events())
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("closed bus refuses publishes", func(t *testing.T) {
		bus := NewBus()
		require.NoError(t, bus.Close())

		assert.ErrorIs(t, bus.Publish(ctx, event("started")), eventfold.ErrBusClosed)
	})

	t.Run("closes subscriber channels", func(t *testing.T) {
		bus := NewBus()
		subscriber := bus.Subscribe()

		require.NoError(t, bus.Close())

		_, open := <-subscriber
		assert.False(t, open)
	})

	t.Run("closing twice is safe", func(t *testing.T) {
		bus := NewBus()
		require.NoError(t, bus.Close())
		require.NoError(t, bus.Close())
	})
}

func TestReset(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Publish(context.Background(), event("started")))

	bus.Reset()

	assert.Empty(t, bus.Events())
}
