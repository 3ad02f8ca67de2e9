package eventfold

import (
	"fmt"

	"github.com/google/uuid"
)

// Built-in event names available on every aggregate.
const (
	// EventTransferredOwnership records a change of the aggregate owner.
	// It is always the first event in an instance's history.
	EventTransferredOwnership = "transferredOwnership"

	// EventAuthorized records a change to the per-command/per-event
	// visibility flags.
	EventAuthorized = "authorized"
)

// Suffixes of the synthetic events that report a pipeline outcome to the
// requester. Synthetic events are published but never persisted.
const (
	RejectedSuffix = "Rejected"
	FailedSuffix   = "Failed"
)

// Authorization carries the visibility of one event: who owns the
// aggregate and whether authenticated or public users may observe it.
type Authorization struct {
	Owner            string `json:"owner,omitempty"`
	ForAuthenticated bool   `json:"forAuthenticated"`
	ForPublic        bool   `json:"forPublic"`
}

// EventMetadata carries contextual and ordering information about an event.
type EventMetadata struct {
	// CorrelationID links all events caused by one inbound command chain.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID is the ID of the command that produced this event.
	CausationID string `json:"causationId,omitempty"`

	// Revision is the 1-based sequence number of the event within its
	// aggregate's history. Assigned at creation time; provisional until
	// the batch is persisted.
	Revision int64 `json:"revision"`

	// Position is the store-assigned global ordering number. Zero until
	// the event has been persisted.
	Position uint64 `json:"position,omitempty"`

	// IsAuthorized is the event's visibility at the time it was published.
	IsAuthorized Authorization `json:"isAuthorized"`
}

// Event is an immutable fact produced by handling a command. Events are
// append-only and never mutated after creation; the only field assigned
// later is the store position, set on the committed copy at persist time.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Context is the name of the context the aggregate belongs to.
	Context string `json:"context"`

	// Aggregate identifies the aggregate instance this event belongs to.
	Aggregate AggregateRef `json:"aggregate"`

	// Name is the event name within the aggregate (e.g. "joined").
	Name string `json:"name"`

	// Data is the event payload.
	Data State `json:"data,omitempty"`

	// UserID identifies the user whose command produced the event.
	UserID string `json:"userId,omitempty"`

	// Metadata carries contextual and ordering information.
	Metadata EventMetadata `json:"metadata"`
}

// newEvent builds an event caused by the given command.
func newEvent(cmd *Command, name string, data State, revision int64, auth Authorization) Event {
	return Event{
		ID:        uuid.New().String(),
		Context:   cmd.Context,
		Aggregate: cmd.Aggregate,
		Name:      name,
		Data:      data,
		UserID:    cmd.User.ID,
		Metadata: EventMetadata{
			CorrelationID: cmd.Metadata.CorrelationID,
			CausationID:   cmd.ID,
			Revision:      revision,
			IsAuthorized:  auth,
		},
	}
}

// FullName returns the event's fully qualified name,
// "<context>.<aggregate>.<event>".
func (e Event) FullName() string {
	return fmt.Sprintf("%s.%s.%s", e.Context, e.Aggregate.Name, e.Name)
}
