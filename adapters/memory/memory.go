// Package memory provides an in-memory implementation of the event store
// adapter. This store is primarily intended for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventfold/eventfold/adapters"
)

// Ensure MemoryStore implements the required interfaces.
var (
	_ adapters.EventStore    = (*MemoryStore)(nil)
	_ adapters.HealthChecker = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory implementation of adapters.EventStore.
// It is thread-safe and suitable for unit testing.
type MemoryStore struct {
	mu             sync.RWMutex
	streams        map[string][]adapters.StoredEvent
	globalPosition uint64
	snapshots      map[string]*adapters.SnapshotRecord
	closed         bool
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// NewStore creates a new in-memory event store.
func NewStore(opts ...Option) *MemoryStore {
	store := &MemoryStore{
		streams:   make(map[string][]adapters.StoredEvent),
		snapshots: make(map[string]*adapters.SnapshotRecord),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Initialize is a no-op for the memory store.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	return nil
}

// SaveEvents appends one batch of events atomically with a revision check.
func (s *MemoryStore) SaveEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := adapters.ValidateBatch(records); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, adapters.ErrStoreClosed
	}

	aggregateID := records[0].AggregateID
	stream := s.streams[aggregateID]

	currentRevision := int64(0)
	if len(stream) > 0 {
		currentRevision = stream[len(stream)-1].Revision
	}
	if records[0].Revision != currentRevision+1 {
		return nil, adapters.NewRevisionConflictError(aggregateID, records[0].Revision, currentRevision)
	}

	now := time.Now()
	stored := make([]adapters.StoredEvent, len(records))
	for i, record := range records {
		s.globalPosition++
		stored[i] = adapters.StoredEvent{
			EventRecord: record,
			Position:    s.globalPosition,
			Timestamp:   now,
		}
		stream = append(stream, stored[i])
	}
	s.streams[aggregateID] = stream

	return stored, nil
}

// GetEventStream returns the aggregate's events from the given revision on.
func (s *MemoryStore) GetEventStream(ctx context.Context, aggregateID string, fromRevision int64) (adapters.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, adapters.ErrStoreClosed
	}

	if aggregateID == "" {
		return nil, adapters.ErrEmptyAggregateID
	}

	var events []adapters.StoredEvent
	for _, event := range s.streams[aggregateID] {
		if event.Revision >= fromRevision {
			events = append(events, event)
		}
	}

	return adapters.NewSliceStream(events), nil
}

// GetSnapshot returns the latest snapshot for the aggregate, or nil.
func (s *MemoryStore) GetSnapshot(ctx context.Context, aggregateID string) (*adapters.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, adapters.ErrStoreClosed
	}

	snapshot, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}

	// Return a copy to prevent mutation.
	copied := *snapshot
	return &copied, nil
}

// SaveSnapshot stores a snapshot, replacing any previous one.
func (s *MemoryStore) SaveSnapshot(ctx context.Context, record adapters.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return adapters.ErrStoreClosed
	}

	if record.AggregateID == "" {
		return adapters.ErrEmptyAggregateID
	}

	s.snapshots[record.AggregateID] = &record
	return nil
}

// MarkEventsAsPublished marks the revision range as published. Idempotent.
func (s *MemoryStore) MarkEventsAsPublished(ctx context.Context, aggregateID string, fromRevision, toRevision int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return adapters.ErrStoreClosed
	}

	stream := s.streams[aggregateID]
	for i := range stream {
		if stream[i].Revision >= fromRevision && stream[i].Revision <= toRevision {
			stream[i].Published = true
		}
	}

	return nil
}

// GetUnpublishedEventStream returns every unpublished event across all
// aggregates in global position order.
func (s *MemoryStore) GetUnpublishedEventStream(ctx context.Context) (adapters.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, adapters.ErrStoreClosed
	}

	var events []adapters.StoredEvent
	for _, stream := range s.streams {
		for _, event := range stream {
			if !event.Published {
				events = append(events, event)
			}
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Position < events[j].Position
	})

	return adapters.NewSliceStream(events), nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return adapters.ErrStoreClosed
	}

	return nil
}

// Close releases the store. Further operations fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Reset clears all data. Useful for testing.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streams = make(map[string][]adapters.StoredEvent)
	s.snapshots = make(map[string]*adapters.SnapshotRecord)
	s.globalPosition = 0
}

// EventCount returns the total number of events stored.
func (s *MemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, stream := range s.streams {
		count += len(stream)
	}
	return count
}

// SnapshotCount returns the number of stored snapshots.
func (s *MemoryStore) SnapshotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
