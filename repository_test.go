package eventfold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/eventfold/adapters"
	"github.com/eventfold/eventfold/adapters/memory"
)

// saveTrackingStore counts SaveEvents calls on top of the memory store.
type saveTrackingStore struct {
	*memory.MemoryStore
	saves int
}

func (s *saveTrackingStore) SaveEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	s.saves++
	return s.MemoryStore.SaveEvents(ctx, records)
}

func TestSaveAggregate(t *testing.T) {
	wm := newPlanningModel(t)
	ctx := context.Background()

	t.Run("persists uncommitted events and assigns positions", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store)

		cmd := newPeerGroupCommand("start", State{})
		agg, err := NewWritableAggregate(wm, cmd)
		require.NoError(t, err)
		require.NoError(t, agg.ForCommands().Publish("started", State{"destination": "Berlin"}))
		require.NoError(t, agg.ForCommands().Publish("joined", State{"participant": "jane"}))

		committed, err := repo.SaveAggregate(ctx, agg)
		require.NoError(t, err)
		require.Len(t, committed, 2)

		assert.Equal(t, uint64(1), committed[0].Metadata.Position)
		assert.Equal(t, uint64(2), committed[1].Metadata.Position)
		assert.Equal(t, 2, store.EventCount())
	})

	t.Run("saving without uncommitted events touches no store", func(t *testing.T) {
		store := &saveTrackingStore{MemoryStore: memory.NewStore()}
		repo := NewRepository(store)

		cmd := newPeerGroupCommand("join", State{})
		agg, err := NewWritableAggregate(wm, cmd)
		require.NoError(t, err)

		committed, err := repo.SaveAggregate(ctx, agg)
		require.NoError(t, err)
		assert.Empty(t, committed)
		assert.Zero(t, store.saves)
	})

	t.Run("concurrent appenders conflict on revision", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store)

		first, err := NewWritableAggregate(wm, newPeerGroupCommand("start", State{}))
		require.NoError(t, err)
		require.NoError(t, first.ForCommands().Publish("started", State{}))

		second, err := NewWritableAggregate(wm, newPeerGroupCommand("start", State{}))
		require.NoError(t, err)
		require.NoError(t, second.ForCommands().Publish("started", State{}))

		_, err = repo.SaveAggregate(ctx, first)
		require.NoError(t, err)

		_, err = repo.SaveAggregate(ctx, second)
		assert.ErrorIs(t, err, adapters.ErrRevisionConflict)
	})
}

func TestReplayAggregate(t *testing.T) {
	wm := newPlanningModel(t)
	ctx := context.Background()

	t.Run("round-trips state through the store", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store)

		agg, err := NewWritableAggregate(wm, newPeerGroupCommand("start", State{}))
		require.NoError(t, err)
		require.NoError(t, agg.ForCommands().Publish("started", State{"destination": "Berlin"}))
		require.NoError(t, agg.ForCommands().Publish("joined", State{"participant": "jane"}))
		_, err = repo.SaveAggregate(ctx, agg)
		require.NoError(t, err)

		replayed, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)

		assert.Equal(t, int64(2), replayed.Revision())
		assert.True(t, replayed.Exists())
		assert.Equal(t, true, replayed.ForReadOnly().State()["initialized"])
		assert.Equal(t, "Berlin", replayed.ForReadOnly().State()["destination"])
		assert.Equal(t, []interface{}{"jane"}, replayed.ForReadOnly().State()["participants"])
	})

	t.Run("fresh instance replays to revision zero", func(t *testing.T) {
		repo := NewRepository(memory.NewStore())

		agg, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-404")
		require.NoError(t, err)

		assert.False(t, agg.Exists())
		assert.Equal(t, int64(0), agg.Revision())
	})

	t.Run("fails fast on an event the model cannot apply", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store)

		record, err := encodeEventRecord(repo.codec, Event{
			ID:        "evt-1",
			Context:   "planning",
			Aggregate: AggregateRef{Name: "peerGroup", ID: "pg-1"},
			Name:      "vanished",
			Data:      State{},
			Metadata:  EventMetadata{Revision: 1},
		})
		require.NoError(t, err)
		_, err = store.SaveEvents(ctx, []adapters.EventRecord{record})
		require.NoError(t, err)

		_, err = repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})
}

func TestSnapshotting(t *testing.T) {
	wm := newPlanningModel(t)
	ctx := context.Background()

	seed := func(t *testing.T, repo *Repository, participants ...string) {
		agg, err := NewWritableAggregate(wm, newPeerGroupCommand("start", State{}))
		require.NoError(t, err)
		require.NoError(t, agg.ForCommands().Publish("started", State{}))
		for _, participant := range participants {
			require.NoError(t, agg.ForCommands().Publish("joined", State{"participant": participant}))
		}
		_, err = repo.SaveAggregate(ctx, agg)
		require.NoError(t, err)
	}

	t.Run("takes a snapshot once the threshold is reached", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store, WithSnapshotThreshold(3))
		seed(t, repo, "jane", "john", "kate")

		_, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return store.SnapshotCount() == 1
		}, time.Second, 10*time.Millisecond)

		snapshot, err := store.GetSnapshot(ctx, "pg-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), snapshot.Revision)
	})

	t.Run("stays below the threshold without snapshotting", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store, WithSnapshotThreshold(100))
		seed(t, repo, "jane")

		_, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, store.SnapshotCount())
	})

	t.Run("replays from the snapshot and the events after it", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store, WithSnapshotThreshold(2))
		seed(t, repo, "jane")

		_, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return store.SnapshotCount() == 1
		}, time.Second, 10*time.Millisecond)

		// Append more history after the snapshot.
		agg, err := repo.LoadAggregateFor(ctx, wm, newPeerGroupCommand("join", State{}))
		require.NoError(t, err)
		require.NoError(t, agg.ForCommands().Publish("joined", State{"participant": "john"}))
		_, err = repo.SaveAggregate(ctx, agg)
		require.NoError(t, err)

		replayed, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), replayed.Revision())
		assert.Equal(t, []interface{}{"jane", "john"}, replayed.ForReadOnly().State()["participants"])
	})

	t.Run("zero threshold disables snapshotting", func(t *testing.T) {
		store := memory.NewStore()
		repo := NewRepository(store, WithSnapshotThreshold(0))
		seed(t, repo, "jane", "john", "kate")

		_, err := repo.LoadAggregate(ctx, wm, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, store.SnapshotCount())
	})
}

func TestAppRead(t *testing.T) {
	wm := newPlanningModel(t)
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewRepository(store)
	app := NewApp(wm, repo)

	t.Run("missing instance fails with not found", func(t *testing.T) {
		_, err := app.Read(ctx, "planning", "peerGroup", "pg-404")
		assert.ErrorIs(t, err, ErrAggregateNotFound)
	})

	t.Run("returns a copy of the replayed state", func(t *testing.T) {
		agg, err := NewWritableAggregate(wm, newPeerGroupCommand("start", State{}))
		require.NoError(t, err)
		require.NoError(t, agg.ForCommands().Publish("started", State{"destination": "Berlin"}))
		_, err = repo.SaveAggregate(ctx, agg)
		require.NoError(t, err)

		state, err := app.Read(ctx, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)
		assert.Equal(t, "Berlin", state["destination"])

		// The returned state is a copy.
		state["destination"] = "Paris"
		again, err := app.Read(ctx, "planning", "peerGroup", "pg-1")
		require.NoError(t, err)
		assert.Equal(t, "Berlin", again["destination"])
	})
}
