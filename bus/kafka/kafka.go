// Package kafka provides a Kafka-backed event bus using
// github.com/segmentio/kafka-go. Events are keyed by aggregate ID so all
// events of one aggregate land on the same partition, in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eventfold/eventfold"
	kafkago "github.com/segmentio/kafka-go"
)

// Ensure Bus implements the bus interface.
var _ eventfold.Bus = (*Bus)(nil)

// Bus publishes events to one Kafka topic.
type Bus struct {
	brokers      []string
	topic        string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	writer       *kafkago.Writer
}

// Option configures a Kafka Bus.
type Option func(*Bus)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(b *Bus) {
		b.brokers = brokers
	}
}

// WithTopic sets the topic events are published to.
func WithTopic(topic string) Option {
	return func(b *Bus) {
		b.topic = topic
	}
}

// WithBalancer sets the message balancer (partitioner).
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(b *Bus) {
		b.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout for the writer.
func WithBatchTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.batchTimeout = d
	}
}

// NewBus creates a Kafka event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		brokers:      []string{"localhost:9092"},
		topic:        "eventfold.events",
		balancer:     &kafkago.LeastBytes{},
		batchTimeout: 10 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.writer = &kafkago.Writer{
		Addr:                   kafkago.TCP(b.brokers...),
		Topic:                  b.topic,
		Balancer:               b.balancer,
		BatchTimeout:           b.batchTimeout,
		AllowAutoTopicCreation: true,
	}

	return b
}

// Publish writes the event to the topic, keyed by aggregate ID.
func (b *Bus) Publish(ctx context.Context, event eventfold.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: failed to encode event %q: %w", event.FullName(), err)
	}

	message := kafkago.Message{
		Key:   []byte(event.Aggregate.ID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "name", Value: []byte(event.FullName())},
			{Key: "correlationId", Value: []byte(event.Metadata.CorrelationID)},
		},
	}

	if err := b.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("kafka: failed to write to topic %s: %w", b.topic, err)
	}

	return nil
}

// Close closes the underlying writer.
func (b *Bus) Close() error {
	return b.writer.Close()
}
