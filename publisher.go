package eventfold

import (
	"context"
	"fmt"

	"github.com/eventfold/eventfold/adapters"
)

// Bus delivers committed and synthetic events to downstream consumers.
// Implementations must tolerate duplicate deliveries; the publisher
// guarantees at-least-once, not exactly-once.
type Bus interface {
	// Publish delivers one event.
	Publish(ctx context.Context, event Event) error

	// Close releases resources held by the bus.
	Close() error
}

// EventPublisher delivers committed events to the event bus and the flow
// bus and records successful delivery back into the store. Events are
// published strictly in revision order; a delivery failure aborts the batch
// and leaves the remaining events unmarked for recovery at next start.
type EventPublisher struct {
	eventBus Bus
	flowBus  Bus
	store    adapters.EventStore
	codec    Codec
	logger   Logger
}

// PublisherOption configures an EventPublisher.
type PublisherOption func(*EventPublisher)

// WithFlowBus sets the flow bus. Without one, events go to the event bus only.
func WithFlowBus(bus Bus) PublisherOption {
	return func(p *EventPublisher) {
		p.flowBus = bus
	}
}

// WithPublisherCodec sets the codec used to decode recovered events.
func WithPublisherCodec(codec Codec) PublisherOption {
	return func(p *EventPublisher) {
		p.codec = codec
	}
}

// WithPublisherLogger sets the logger for the publisher.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *EventPublisher) {
		p.logger = logger
	}
}

// NewEventPublisher creates a publisher delivering to the given event bus.
func NewEventPublisher(eventBus Bus, store adapters.EventStore, opts ...PublisherOption) *EventPublisher {
	publisher := &EventPublisher{
		eventBus: eventBus,
		store:    store,
		codec:    NewJSONCodec(),
		logger:   &noopLogger{},
	}

	for _, opt := range opts {
		opt(publisher)
	}

	return publisher
}

// PublishEvents delivers one command's committed events in order and marks
// the whole revision range as published afterwards. A delivery failure
// aborts immediately: none of the batch is marked, and every event is
// redelivered by RecoverUnpublished on next start.
func (p *EventPublisher) PublishEvents(ctx context.Context, aggregateID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := p.deliver(ctx, event); err != nil {
			return err
		}
	}

	fromRevision := events[0].Metadata.Revision
	toRevision := events[len(events)-1].Metadata.Revision
	if err := p.store.MarkEventsAsPublished(ctx, aggregateID, fromRevision, toRevision); err != nil {
		return fmt.Errorf("eventfold: failed to mark events as published for %q: %w", aggregateID, err)
	}

	return nil
}

// PublishSynthetic delivers a rejection or failure event to both buses.
// Synthetic events are never persisted and never marked.
func (p *EventPublisher) PublishSynthetic(ctx context.Context, event Event) error {
	return p.deliver(ctx, event)
}

// RecoverUnpublished redelivers every event that was saved but never marked
// as published, closing the crash gap between save and publish. Call once
// at process start, before accepting commands.
func (p *EventPublisher) RecoverUnpublished(ctx context.Context) error {
	stream, err := p.store.GetUnpublishedEventStream(ctx)
	if err != nil {
		return fmt.Errorf("eventfold: failed to load unpublished events: %w", err)
	}
	defer func() { _ = stream.Close() }()

	recovered := 0
	for stream.Next() {
		stored := stream.Event()
		event, err := decodeStoredEvent(p.codec, stored)
		if err != nil {
			return err
		}
		if err := p.deliver(ctx, event); err != nil {
			return err
		}
		if err := p.store.MarkEventsAsPublished(ctx, stored.AggregateID, stored.Revision, stored.Revision); err != nil {
			return fmt.Errorf("eventfold: failed to mark recovered event as published: %w", err)
		}
		recovered++
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("eventfold: failed to stream unpublished events: %w", err)
	}

	if recovered > 0 {
		p.logger.Info("recovered unpublished events", "count", recovered)
	}

	return nil
}

// deliver publishes one event to the event bus, then the flow bus.
func (p *EventPublisher) deliver(ctx context.Context, event Event) error {
	if p.eventBus != nil {
		if err := p.eventBus.Publish(ctx, event); err != nil {
			return fmt.Errorf("eventfold: event bus publish of %q failed: %w", event.FullName(), err)
		}
	}
	if p.flowBus != nil {
		if err := p.flowBus.Publish(ctx, event); err != nil {
			return fmt.Errorf("eventfold: flow bus publish of %q failed: %w", event.FullName(), err)
		}
	}
	return nil
}

// Close closes both buses. The store is owned by the caller.
func (p *EventPublisher) Close() error {
	var firstErr error
	if p.eventBus != nil {
		if err := p.eventBus.Close(); err != nil {
			firstErr = err
		}
	}
	if p.flowBus != nil {
		if err := p.flowBus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
