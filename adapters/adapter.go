// Package adapters provides interfaces for durable event store backends.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrRevisionConflict is returned when an append does not continue the
	// stream at the expected revision.
	ErrRevisionConflict = errors.New("eventfold: revision conflict")

	// ErrEmptyAggregateID is returned when an empty aggregate ID is provided.
	ErrEmptyAggregateID = errors.New("eventfold: aggregate ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("eventfold: no events to append")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("eventfold: store is closed")
)

// RevisionConflictError provides detailed information about a concurrency
// conflict on one aggregate's stream.
type RevisionConflictError struct {
	AggregateID      string
	ExpectedRevision int64
	ActualRevision   int64
}

// Error returns the error message.
func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("eventfold: revision conflict on aggregate %q: expected revision %d, actual revision %d",
		e.AggregateID, e.ExpectedRevision, e.ActualRevision)
}

// Is reports whether this error matches the target error.
func (e *RevisionConflictError) Is(target error) bool {
	return target == ErrRevisionConflict
}

// NewRevisionConflictError creates a new RevisionConflictError.
func NewRevisionConflictError(aggregateID string, expected, actual int64) *RevisionConflictError {
	return &RevisionConflictError{
		AggregateID:      aggregateID,
		ExpectedRevision: expected,
		ActualRevision:   actual,
	}
}

// EventRecord is the adapter-level representation of one event to append.
// The payload is already serialized; the remaining fields are stored as
// queryable columns.
type EventRecord struct {
	// ID is the unique event identifier.
	ID string

	// AggregateID is the aggregate instance the event belongs to.
	AggregateID string

	// Context is the context name of the aggregate.
	Context string

	// AggregateName is the aggregate type name.
	AggregateName string

	// Name is the event name.
	Name string

	// Data is the serialized event payload.
	Data []byte

	// UserID identifies the user whose command produced the event.
	UserID string

	// CorrelationID links all events caused by one command chain.
	CorrelationID string

	// CausationID is the ID of the command that produced the event.
	CausationID string

	// Revision is the 1-based position within the aggregate's history.
	Revision int64

	// Owner is the aggregate owner at publish time.
	Owner string

	// ForAuthenticated marks the event visible to authenticated users.
	ForAuthenticated bool

	// ForPublic marks the event visible to everyone.
	ForPublic bool
}

// StoredEvent is a persisted event with its storage metadata.
type StoredEvent struct {
	EventRecord

	// Position is the store-assigned global ordering number.
	Position uint64

	// Published reports whether the event was marked as published.
	Published bool

	// Timestamp is when the event was stored.
	Timestamp time.Time
}

// SnapshotRecord is a stored aggregate snapshot.
type SnapshotRecord struct {
	// AggregateID is the aggregate instance the snapshot belongs to.
	AggregateID string

	// State is the serialized aggregate state.
	State []byte

	// Revision is the revision of the last event covered by the snapshot.
	Revision int64
}

// EventStream iterates over stored events in order. It follows the
// database-rows idiom: Next advances, Event returns the current event, Err
// reports the terminal error after Next returns false.
type EventStream interface {
	// Next advances to the next event. It returns false when the stream is
	// exhausted or failed.
	Next() bool

	// Event returns the current event. Only valid after Next returned true.
	Event() *StoredEvent

	// Err returns the error that ended iteration, if any.
	Err() error

	// Close releases resources held by the stream.
	Close() error
}

// EventStore is the interface durable event store backends must implement.
// Appends are atomic per aggregate batch; the store assigns a globally
// monotonic position to every event and enforces optimistic concurrency on
// the aggregate's revision sequence.
type EventStore interface {
	// SaveEvents appends one batch of events atomically. All records must
	// target the same aggregate and carry consecutive revisions continuing
	// the stream; otherwise the whole batch is rejected with
	// ErrRevisionConflict. Returns the stored events with assigned
	// positions, ordered as submitted.
	SaveEvents(ctx context.Context, records []EventRecord) ([]StoredEvent, error)

	// GetEventStream returns the aggregate's events with revision >=
	// fromRevision, in revision order.
	GetEventStream(ctx context.Context, aggregateID string, fromRevision int64) (EventStream, error)

	// GetSnapshot returns the latest snapshot for the aggregate, or
	// nil, nil if none exists.
	GetSnapshot(ctx context.Context, aggregateID string) (*SnapshotRecord, error)

	// SaveSnapshot stores a snapshot, replacing any previous one.
	SaveSnapshot(ctx context.Context, record SnapshotRecord) error

	// MarkEventsAsPublished marks the aggregate's events in the inclusive
	// revision range as published. The operation is idempotent.
	MarkEventsAsPublished(ctx context.Context, aggregateID string, fromRevision, toRevision int64) error

	// GetUnpublishedEventStream returns all events ever saved but never
	// marked as published, in global position order. It is consumed once
	// at process start to close the save/publish crash gap.
	GetUnpublishedEventStream(ctx context.Context) (EventStream, error)

	// Initialize sets up the required storage schema.
	Initialize(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// HealthChecker provides health check capabilities.
type HealthChecker interface {
	// Ping checks if the store can reach its backend.
	Ping(ctx context.Context) error
}

// ValidateBatch checks that a batch of records is non-empty, targets one
// aggregate and carries consecutive revisions starting at firstRevision.
func ValidateBatch(records []EventRecord) error {
	if len(records) == 0 {
		return ErrNoEvents
	}
	aggregateID := records[0].AggregateID
	if aggregateID == "" {
		return ErrEmptyAggregateID
	}
	for i, record := range records {
		if record.AggregateID != aggregateID {
			return fmt.Errorf("eventfold: batch mixes aggregates %q and %q", aggregateID, record.AggregateID)
		}
		if record.Revision != records[0].Revision+int64(i) {
			return fmt.Errorf("eventfold: batch revisions are not consecutive at index %d", i)
		}
	}
	return nil
}

// SliceStream is an EventStream over an in-memory slice. It is used by the
// memory store and by tests.
type SliceStream struct {
	events []StoredEvent
	index  int
}

// NewSliceStream creates an EventStream over the given events.
func NewSliceStream(events []StoredEvent) *SliceStream {
	return &SliceStream{events: events, index: -1}
}

// Next advances to the next event.
func (s *SliceStream) Next() bool {
	if s.index+1 >= len(s.events) {
		return false
	}
	s.index++
	return true
}

// Event returns the current event.
func (s *SliceStream) Event() *StoredEvent {
	return &s.events[s.index]
}

// Err always returns nil; a slice stream cannot fail.
func (s *SliceStream) Err() error {
	return nil
}

// Close is a no-op.
func (s *SliceStream) Close() error {
	return nil
}
