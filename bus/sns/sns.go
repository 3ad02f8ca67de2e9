// Package sns provides an AWS SNS-backed event bus.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/eventfold/eventfold"
)

// Ensure Bus implements the bus interface.
var _ eventfold.Bus = (*Bus)(nil)

// SNSClient defines the subset of the SNS API used by the bus.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Bus publishes events to one SNS topic.
type Bus struct {
	client         SNSClient
	topicARN       string
	messageGroupID string
}

// Option configures an SNS Bus.
type Option func(*Bus)

// WithSNSClient sets the SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(b *Bus) {
		b.client = client
	}
}

// WithMessageGroupID sets the message group ID for FIFO topics.
func WithMessageGroupID(groupID string) Option {
	return func(b *Bus) {
		b.messageGroupID = groupID
	}
}

// NewBus creates an SNS event bus publishing to the given topic ARN.
func NewBus(topicARN string, opts ...Option) *Bus {
	b := &Bus{topicARN: topicARN}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Publish sends the event to the configured topic. The event name and
// correlation ID travel as message attributes for subscriber filtering.
func (b *Bus) Publish(ctx context.Context, event eventfold.Event) error {
	if b.client == nil {
		return fmt.Errorf("sns: client not configured")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sns: failed to encode event %q: %w", event.FullName(), err)
	}

	input := &sns.PublishInput{
		TopicArn: &b.topicARN,
		Message:  stringPtr(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"name": {
				DataType:    stringPtr("String"),
				StringValue: stringPtr(event.FullName()),
			},
			"aggregateId": {
				DataType:    stringPtr("String"),
				StringValue: stringPtr(event.Aggregate.ID),
			},
		},
	}

	if b.messageGroupID != "" {
		input.MessageGroupId = &b.messageGroupID
	}

	if _, err := b.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns: failed to publish to %s: %w", b.topicARN, err)
	}

	return nil
}

// Close is a no-op; the SNS client is owned by the caller.
func (b *Bus) Close() error {
	return nil
}

func stringPtr(s string) *string {
	return &s
}
