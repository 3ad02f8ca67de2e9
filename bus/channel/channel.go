// Package channel provides an in-process event bus backed by Go channels.
// It is the default flow bus and the bus of choice in tests.
package channel

import (
	"context"
	"sync"

	"github.com/eventfold/eventfold"
)

// Ensure Bus implements the bus interface.
var _ eventfold.Bus = (*Bus)(nil)

// Bus is an in-process event bus. Every published event is recorded and
// fanned out to all subscribers. Subscribers with full buffers drop events
// rather than block the publisher.
type Bus struct {
	mu          sync.RWMutex
	events      []eventfold.Event
	subscribers []chan eventfold.Event
	closed      bool
}

// Option configures a Bus.
type Option func(*Bus)

// NewBus creates a new in-process bus.
func NewBus(opts ...Option) *Bus {
	bus := &Bus{}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Publish records the event and fans it out to all subscribers.
func (b *Bus) Publish(ctx context.Context, event eventfold.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return eventfold.ErrBusClosed
	}

	b.events = append(b.events, event)
	for _, subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}

	return nil
}

// Subscribe returns a channel receiving every event published after the
// call. The channel is closed when the bus closes.
func (b *Bus) Subscribe() <-chan eventfold.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriber := make(chan eventfold.Event, 256)
	b.subscribers = append(b.subscribers, subscriber)
	return subscriber
}

// Events returns a copy of every event published so far.
func (b *Bus) Events() []eventfold.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := make([]eventfold.Event, len(b.events))
	copy(events, b.events)
	return events
}

// Reset clears the recorded events. Useful for testing.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Close closes the bus and all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, subscriber := range b.subscribers {
		close(subscriber)
	}
	b.subscribers = nil

	return nil
}
