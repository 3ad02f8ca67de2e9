package eventfold

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/eventfold/adapters/memory"
)

func newTestPipeline(t *testing.T, opts ...PipelineOption) (*Pipeline, *memory.MemoryStore, *recordingBus, *recordingBus) {
	t.Helper()

	wm := newPlanningModel(t)
	store := memory.NewStore()
	repo := NewRepository(store)
	eventBus := &recordingBus{}
	flowBus := &recordingBus{}
	publisher := NewEventPublisher(eventBus, store, WithFlowBus(flowBus))
	pipeline := NewPipeline(wm, repo, publisher, opts...)

	return pipeline, store, eventBus, flowBus
}

func unpublishedCount(t *testing.T, store *memory.MemoryStore) int {
	t.Helper()

	stream, err := store.GetUnpublishedEventStream(context.Background())
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	count := 0
	for stream.Next() {
		count++
	}
	require.NoError(t, stream.Err())
	return count
}

func TestPipelineSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("first command seeds ownership and commits its events", func(t *testing.T) {
		pipeline, store, eventBus, flowBus := newTestPipeline(t)

		result, err := pipeline.Handle(ctx, newPeerGroupCommand("start", State{
			"initiator":   "jane",
			"destination": "Berlin",
		}))
		require.NoError(t, err)

		assert.Equal(t, OutcomeSuccess, result.Outcome)
		assert.Nil(t, result.Notification)
		require.Len(t, result.Events, 3)

		names := []string{result.Events[0].Name, result.Events[1].Name, result.Events[2].Name}
		assert.Equal(t, []string{EventTransferredOwnership, "started", "joined"}, names)
		assert.Equal(t, int64(1), result.Events[0].Metadata.Revision)
		assert.Equal(t, int64(2), result.Events[1].Metadata.Revision)
		assert.Equal(t, int64(3), result.Events[2].Metadata.Revision)
		assert.Equal(t, "jane", result.Events[0].Data["to"])

		assert.Equal(t, 3, store.EventCount())
		assert.Equal(t, []string{EventTransferredOwnership, "started", "joined"}, eventBus.Names())
		assert.Equal(t, []string{EventTransferredOwnership, "started", "joined"}, flowBus.Names())
		assert.Zero(t, unpublishedCount(t, store))
	})

	t.Run("later commands continue the revision sequence", func(t *testing.T) {
		pipeline, store, _, _ := newTestPipeline(t)

		_, err := pipeline.Handle(ctx, newPeerGroupCommand("start", State{"initiator": "jane"}))
		require.NoError(t, err)

		result, err := pipeline.Handle(ctx, NewCommand("planning",
			AggregateRef{Name: "peerGroup", ID: "pg-1"}, "join",
			State{"participant": "john"},
			WithUser(User{ID: "john"})))
		require.NoError(t, err)

		assert.Equal(t, OutcomeSuccess, result.Outcome)
		require.Len(t, result.Events, 1)
		assert.Equal(t, int64(4), result.Events[0].Metadata.Revision)
		assert.Equal(t, 4, store.EventCount())
	})
}

func TestPipelineRejection(t *testing.T) {
	ctx := context.Background()

	t.Run("domain rejection publishes a Rejected event and persists nothing", func(t *testing.T) {
		pipeline, store, eventBus, flowBus := newTestPipeline(t)

		_, err := pipeline.Handle(ctx, newPeerGroupCommand("start", State{"initiator": "jane"}))
		require.NoError(t, err)
		persisted := store.EventCount()

		result, err := pipeline.Handle(ctx, newPeerGroupCommand("join", State{"participant": "jane"}))
		require.NoError(t, err)

		assert.Equal(t, OutcomeRejected, result.Outcome)
		assert.Equal(t, "Participant had already joined.", result.Reason)
		assert.Empty(t, result.Events)
		require.NotNil(t, result.Notification)
		assert.Equal(t, "joinRejected", result.Notification.Name)
		assert.Equal(t, "Participant had already joined.", result.Notification.Data["reason"])
		assert.Equal(t, int64(0), result.Notification.Metadata.Revision)

		// Synthetic events reach both buses, the store stays untouched.
		assert.Equal(t, "joinRejected", eventBus.Names()[len(eventBus.Names())-1])
		assert.Equal(t, "joinRejected", flowBus.Names()[len(flowBus.Names())-1])
		assert.Equal(t, persisted, store.EventCount())
	})

	t.Run("anonymous sender is rejected before the handler runs", func(t *testing.T) {
		pipeline, store, _, _ := newTestPipeline(t)

		result, err := pipeline.Handle(ctx, NewCommand("planning",
			AggregateRef{Name: "peerGroup", ID: "pg-1"}, "join",
			State{"participant": "nobody"}))
		require.NoError(t, err)

		assert.Equal(t, OutcomeRejected, result.Outcome)
		assert.Equal(t, "Access denied.", result.Reason)
		assert.Zero(t, store.EventCount())
	})
}

func TestPipelineFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("handler fault publishes a Failed event and persists nothing", func(t *testing.T) {
		pipeline, store, eventBus, _ := newTestPipeline(t)

		result, err := pipeline.Handle(ctx, newPeerGroupCommand("breakdown", State{}))
		require.NoError(t, err)

		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, "failed to handle command", result.Reason)
		require.NotNil(t, result.Notification)
		assert.Equal(t, "breakdownFailed", result.Notification.Name)
		assert.Zero(t, store.EventCount())
		assert.Equal(t, []string{"breakdownFailed"}, eventBus.Names())
	})

	t.Run("unknown command fails", func(t *testing.T) {
		pipeline, _, _, _ := newTestPipeline(t)

		result, err := pipeline.Handle(ctx, newPeerGroupCommand("vanish", State{}))
		require.NoError(t, err)

		assert.Equal(t, OutcomeFailed, result.Outcome)
		require.NotNil(t, result.Notification)
		assert.Equal(t, "vanishFailed", result.Notification.Name)
	})

	t.Run("unknown aggregate fails", func(t *testing.T) {
		pipeline, _, _, _ := newTestPipeline(t)

		cmd := NewCommand("planning", AggregateRef{Name: "invoice", ID: "inv-1"}, "create", State{},
			WithUser(User{ID: "jane"}))
		result, err := pipeline.Handle(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, OutcomeFailed, result.Outcome)
	})

	t.Run("nil command is infrastructure-fatal", func(t *testing.T) {
		pipeline, _, _, _ := newTestPipeline(t)

		_, err := pipeline.Handle(ctx, nil)
		assert.ErrorIs(t, err, ErrNilCommand)
	})
}

func TestPipelineImpersonation(t *testing.T) {
	ctx := context.Background()

	t.Run("denied without the capability", func(t *testing.T) {
		pipeline, store, _, _ := newTestPipeline(t)

		cmd := newPeerGroupCommand("start", State{"initiator": "john"}, AsUser("john"))
		result, err := pipeline.Handle(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, OutcomeRejected, result.Outcome)
		assert.Equal(t, "Impersonation denied.", result.Reason)
		assert.Zero(t, store.EventCount())
	})

	t.Run("granted with the capability", func(t *testing.T) {
		pipeline, _, _, _ := newTestPipeline(t)

		cmd := NewCommand("planning", AggregateRef{Name: "peerGroup", ID: "pg-1"}, "start",
			State{"initiator": "john"},
			WithUser(User{ID: "jane", Token: map[string]interface{}{CapabilityImpersonate: true}}),
			AsUser("john"))

		result, err := pipeline.Handle(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, OutcomeSuccess, result.Outcome)
		// The impersonated user owns the aggregate and signs the events.
		assert.Equal(t, "john", result.Events[0].Data["to"])
		for _, event := range result.Events {
			assert.Equal(t, "john", event.UserID)
		}
	})
}

func TestPipelinePublishFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("bus failure after commit surfaces as an error and leaves events unpublished", func(t *testing.T) {
		pipeline, store, eventBus, _ := newTestPipeline(t)
		eventBus.failOn = "started"

		_, err := pipeline.Handle(ctx, newPeerGroupCommand("start", State{"initiator": "jane"}))
		require.Error(t, err)

		// Events were committed, recovery will redeliver them.
		assert.Equal(t, 3, store.EventCount())
		assert.Equal(t, 3, unpublishedCount(t, store))
	})
}

func TestPipelineMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("middleware wraps handling in order", func(t *testing.T) {
		var calls []string
		mw := func(name string) Middleware {
			return func(next HandleFunc) HandleFunc {
				return func(ctx context.Context, cmd *Command) (Result, error) {
					calls = append(calls, name)
					return next(ctx, cmd)
				}
			}
		}

		pipeline, _, _, _ := newTestPipeline(t, Use(mw("outer"), mw("inner")))

		_, err := pipeline.Handle(ctx, newPeerGroupCommand("start", State{"initiator": "jane"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"outer", "inner"}, calls)
	})

	t.Run("custom post-process step can reject after handling", func(t *testing.T) {
		pipeline, store, _, _ := newTestPipeline(t, WithPostProcessStep(
			func(ctx context.Context, agg *WritableAggregate, cmd *Command) error {
				return cmd.Reject("Quota exceeded.")
			}))

		result, err := pipeline.Handle(ctx, newPeerGroupCommand("start", State{"initiator": "jane"}))
		require.NoError(t, err)

		assert.Equal(t, OutcomeRejected, result.Outcome)
		assert.Equal(t, "Quota exceeded.", result.Reason)
		assert.Zero(t, store.EventCount())
	})
}
