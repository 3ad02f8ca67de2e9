package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/adapters"
	"github.com/eventfold/eventfold/adapters/memory"
)

func newCommand(name string) *eventfold.Command {
	return eventfold.NewCommand("planning", eventfold.AggregateRef{Name: "peerGroup", ID: "pg-1"}, name, eventfold.State{})
}

func TestRegister(t *testing.T) {
	t.Run("registers all collectors", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
	})

	t.Run("double registration fails", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
		assert.Error(t, m.Register(registry))
	})
}

func TestCommandMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("counts commands by outcome", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		handle := m.CommandMiddleware()(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			return eventfold.Result{Outcome: eventfold.OutcomeSuccess}, nil
		})

		_, err := handle(ctx, newCommand("start"))
		require.NoError(t, err)
		_, err = handle(ctx, newCommand("start"))
		require.NoError(t, err)

		counter := m.CommandsTotal().WithLabelValues("planning", "planning", "peerGroup", "start", "success")
		assert.Equal(t, float64(2), testutil.ToFloat64(counter))
	})

	t.Run("an infrastructure error counts as error", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		handle := m.CommandMiddleware()(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			return eventfold.Result{}, errors.New("store down")
		})

		_, err := handle(ctx, newCommand("start"))
		require.Error(t, err)

		counter := m.CommandsTotal().WithLabelValues("planning", "planning", "peerGroup", "start", StatusError)
		assert.Equal(t, float64(1), testutil.ToFloat64(counter))
	})

	t.Run("rejections keep their own outcome label", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		handle := m.CommandMiddleware()(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			return eventfold.Result{Outcome: eventfold.OutcomeRejected, Reason: "Access denied."}, nil
		})

		_, err := handle(ctx, newCommand("join"))
		require.NoError(t, err)

		counter := m.CommandsTotal().WithLabelValues("planning", "planning", "peerGroup", "join", "rejected")
		assert.Equal(t, float64(1), testutil.ToFloat64(counter))
	})
}

func TestEventStoreMiddleware(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, store adapters.EventStore) {
		t.Helper()
		_, err := store.SaveEvents(ctx, []adapters.EventRecord{
			{ID: "e1", AggregateID: "pg-1", Name: "started", Revision: 1},
			{ID: "e2", AggregateID: "pg-1", Name: "joined", Revision: 2},
		})
		require.NoError(t, err)
	}

	t.Run("counts saved events", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		store := m.WrapEventStore(memory.NewStore())

		seed(t, store)

		saved := m.EventsSavedTotal().WithLabelValues("planning")
		assert.Equal(t, float64(2), testutil.ToFloat64(saved))
	})

	t.Run("counts published events from the marked range", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		store := m.WrapEventStore(memory.NewStore())

		seed(t, store)
		require.NoError(t, store.MarkEventsAsPublished(ctx, "pg-1", 1, 2))

		published := m.EventsPublishedTotal().WithLabelValues("planning")
		assert.Equal(t, float64(2), testutil.ToFloat64(published))
	})

	t.Run("failed operations do not count events", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		store := m.WrapEventStore(memory.NewStore())

		_, err := store.SaveEvents(ctx, nil)
		require.Error(t, err)

		saved := m.EventsSavedTotal().WithLabelValues("planning")
		assert.Zero(t, testutil.ToFloat64(saved))
	})

	t.Run("delegates reads to the wrapped store", func(t *testing.T) {
		m := New(WithServiceName("planning"))
		inner := memory.NewStore()
		store := m.WrapEventStore(inner)

		seed(t, store)

		stream, err := store.GetEventStream(ctx, "pg-1", 1)
		require.NoError(t, err)
		defer stream.Close()

		count := 0
		for stream.Next() {
			count++
		}
		assert.Equal(t, 2, count)
		assert.Equal(t, 2, inner.EventCount())
	})
}
