package eventfold

import (
	"context"
	"fmt"

	"github.com/eventfold/eventfold/adapters"
)

// DefaultSnapshotThreshold is the number of replayed events after which the
// repository persists a new snapshot.
const DefaultSnapshotThreshold = 100

// Repository loads aggregates by replaying their event streams and persists
// the events new commands produce. It transparently maintains snapshots to
// bound replay cost.
type Repository struct {
	store             adapters.EventStore
	codec             Codec
	logger            Logger
	snapshotThreshold int64
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithCodec sets the codec used for event payloads and snapshot state.
func WithCodec(codec Codec) RepositoryOption {
	return func(r *Repository) {
		r.codec = codec
	}
}

// WithRepositoryLogger sets the logger for the repository.
func WithRepositoryLogger(logger Logger) RepositoryOption {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithSnapshotThreshold sets how many events must be replayed before a new
// snapshot is taken. Zero or negative disables snapshotting.
func WithSnapshotThreshold(threshold int64) RepositoryOption {
	return func(r *Repository) {
		r.snapshotThreshold = threshold
	}
}

// NewRepository creates a repository on top of the given event store.
func NewRepository(store adapters.EventStore, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		store:             store,
		codec:             NewJSONCodec(),
		logger:            &noopLogger{},
		snapshotThreshold: DefaultSnapshotThreshold,
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

// ReplayAggregate brings the aggregate up to date: it seeds the state from
// the latest snapshot if one exists and folds all later events over it.
// Replay fails fast on the first event the write model cannot apply.
func (r *Repository) ReplayAggregate(ctx context.Context, agg *ReadableAggregate) error {
	fromRevision := int64(1)

	record, err := r.store.GetSnapshot(ctx, agg.ID())
	if err != nil {
		return fmt.Errorf("eventfold: failed to load snapshot for %q: %w", agg.ID(), err)
	}
	if record != nil {
		state := State{}
		if err := r.codec.Unmarshal(record.State, &state); err != nil {
			return fmt.Errorf("eventfold: failed to decode snapshot for %q: %w", agg.ID(), err)
		}
		if err := agg.ApplySnapshot(&Snapshot{
			AggregateID: record.AggregateID,
			State:       state,
			Revision:    record.Revision,
		}); err != nil {
			return err
		}
		fromRevision = record.Revision + 1
	}

	stream, err := r.store.GetEventStream(ctx, agg.ID(), fromRevision)
	if err != nil {
		return fmt.Errorf("eventfold: failed to load events for %q: %w", agg.ID(), err)
	}
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		event, err := r.decodeEvent(stream.Event())
		if err != nil {
			return err
		}
		if err := agg.applyEvent(event); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("eventfold: failed to stream events for %q: %w", agg.ID(), err)
	}

	r.maybeSnapshot(agg, fromRevision)

	return nil
}

// maybeSnapshot persists a new snapshot in the background once enough
// events were replayed. Snapshot failures are logged and never surface:
// the snapshot is an optimization, not state of record.
func (r *Repository) maybeSnapshot(agg *ReadableAggregate, fromRevision int64) {
	if r.snapshotThreshold <= 0 {
		return
	}
	replayed := agg.Revision() - fromRevision + 1
	if replayed < r.snapshotThreshold {
		return
	}

	// Deep copy before handing off, the live state keeps mutating.
	state := agg.state.Clone()
	revision := agg.Revision()
	aggregateID := agg.ID()

	go func() {
		data, err := r.codec.Marshal(state)
		if err != nil {
			r.logger.Warn("failed to encode snapshot", "aggregateId", aggregateID, "error", err)
			return
		}
		if err := r.store.SaveSnapshot(context.Background(), adapters.SnapshotRecord{
			AggregateID: aggregateID,
			State:       data,
			Revision:    revision,
		}); err != nil {
			r.logger.Warn("failed to save snapshot", "aggregateId", aggregateID, "error", err)
			return
		}
		r.logger.Debug("saved snapshot", "aggregateId", aggregateID, "revision", revision)
	}()
}

// LoadAggregate loads and replays one aggregate instance for reading.
func (r *Repository) LoadAggregate(ctx context.Context, wm *WriteModel, contextName, aggregateName, id string) (*ReadableAggregate, error) {
	agg, err := NewReadableAggregate(wm, contextName, aggregateName, id)
	if err != nil {
		return nil, err
	}
	if err := r.ReplayAggregate(ctx, agg); err != nil {
		return nil, err
	}
	return agg, nil
}

// LoadAggregateFor loads and replays the aggregate instance targeted by the
// given command.
func (r *Repository) LoadAggregateFor(ctx context.Context, wm *WriteModel, cmd *Command) (*WritableAggregate, error) {
	agg, err := NewWritableAggregate(wm, cmd)
	if err != nil {
		return nil, err
	}
	if err := r.ReplayAggregate(ctx, agg.ReadableAggregate); err != nil {
		return nil, err
	}
	return agg, nil
}

// SaveAggregate persists the aggregate's uncommitted events as one atomic
// batch and returns the committed events with their store positions. Saving
// an aggregate without uncommitted events is a no-op that touches no store.
func (r *Repository) SaveAggregate(ctx context.Context, agg *WritableAggregate) ([]Event, error) {
	uncommitted := agg.UncommittedEvents()
	if len(uncommitted) == 0 {
		return []Event{}, nil
	}

	records := make([]adapters.EventRecord, len(uncommitted))
	for i, event := range uncommitted {
		record, err := r.encodeEvent(event)
		if err != nil {
			return nil, err
		}
		records[i] = record
	}

	stored, err := r.store.SaveEvents(ctx, records)
	if err != nil {
		return nil, err
	}

	committed := make([]Event, len(uncommitted))
	for i, event := range uncommitted {
		event.Metadata.Position = stored[i].Position
		committed[i] = event
	}

	return committed, nil
}

// encodeEvent converts a domain event to its adapter record.
func (r *Repository) encodeEvent(event Event) (adapters.EventRecord, error) {
	return encodeEventRecord(r.codec, event)
}

// decodeEvent converts a stored adapter record back to a domain event.
func (r *Repository) decodeEvent(stored *adapters.StoredEvent) (Event, error) {
	return decodeStoredEvent(r.codec, stored)
}

// encodeEventRecord serializes a domain event's payload and flattens its
// metadata into an adapter record.
func encodeEventRecord(codec Codec, event Event) (adapters.EventRecord, error) {
	data, err := codec.Marshal(event.Data)
	if err != nil {
		return adapters.EventRecord{}, fmt.Errorf("eventfold: failed to encode event %q: %w", event.FullName(), err)
	}

	return adapters.EventRecord{
		ID:               event.ID,
		AggregateID:      event.Aggregate.ID,
		Context:          event.Context,
		AggregateName:    event.Aggregate.Name,
		Name:             event.Name,
		Data:             data,
		UserID:           event.UserID,
		CorrelationID:    event.Metadata.CorrelationID,
		CausationID:      event.Metadata.CausationID,
		Revision:         event.Metadata.Revision,
		Owner:            event.Metadata.IsAuthorized.Owner,
		ForAuthenticated: event.Metadata.IsAuthorized.ForAuthenticated,
		ForPublic:        event.Metadata.IsAuthorized.ForPublic,
	}, nil
}

// decodeStoredEvent rebuilds a domain event from its stored record.
func decodeStoredEvent(codec Codec, stored *adapters.StoredEvent) (Event, error) {
	data := State{}
	if len(stored.Data) > 0 {
		if err := codec.Unmarshal(stored.Data, &data); err != nil {
			return Event{}, fmt.Errorf("eventfold: failed to decode event %q: %w", stored.ID, err)
		}
	}

	return Event{
		ID:      stored.ID,
		Context: stored.Context,
		Aggregate: AggregateRef{
			Name: stored.AggregateName,
			ID:   stored.AggregateID,
		},
		Name:   stored.Name,
		Data:   data,
		UserID: stored.UserID,
		Metadata: EventMetadata{
			CorrelationID: stored.CorrelationID,
			CausationID:   stored.CausationID,
			Revision:      stored.Revision,
			Position:      stored.Position,
			IsAuthorized: Authorization{
				Owner:            stored.Owner,
				ForAuthenticated: stored.ForAuthenticated,
				ForPublic:        stored.ForPublic,
			},
		},
	}, nil
}
