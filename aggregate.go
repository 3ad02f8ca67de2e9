package eventfold

import (
	"fmt"
)

// Snapshot is a point-in-time materialization of one aggregate's state,
// used to bound replay cost. Its absence is always safe.
type Snapshot struct {
	AggregateID string
	State       State
	Revision    int64
}

// ReadableAggregate is the in-memory projection of one aggregate instance,
// offering a read-only view and an event-applying view over a single shared
// state value. Instances live for one pipeline run or one read; they are
// never cached across commands.
type ReadableAggregate struct {
	contextName string
	ref         AggregateRef
	definition  *AggregateDefinition

	// revision is the revision of the last applied (replayed or snapshot)
	// event. It is not advanced by staging uncommitted events.
	revision int64

	// state is the single shared mutable state all views observe.
	state State
}

// NewReadableAggregate constructs a fresh aggregate projection seeded from
// the write model's initial state.
func NewReadableAggregate(wm *WriteModel, contextName, aggregateName, id string) (*ReadableAggregate, error) {
	definition, err := wm.Aggregate(contextName, aggregateName)
	if err != nil {
		return nil, err
	}

	return &ReadableAggregate{
		contextName: contextName,
		ref:         AggregateRef{Name: aggregateName, ID: id},
		definition:  definition,
		state:       definition.InitialState.Clone(),
	}, nil
}

// Context returns the name of the context the aggregate belongs to.
func (a *ReadableAggregate) Context() string {
	return a.contextName
}

// Ref returns the aggregate type name and instance ID.
func (a *ReadableAggregate) Ref() AggregateRef {
	return a.ref
}

// ID returns the aggregate instance ID.
func (a *ReadableAggregate) ID() string {
	return a.ref.ID
}

// Revision returns the revision of the last applied event.
func (a *ReadableAggregate) Revision() int64 {
	return a.revision
}

// Exists reports whether the instance has any history: revision > 0.
func (a *ReadableAggregate) Exists() bool {
	return a.revision > 0
}

// ForReadOnly returns the read-only view over the shared state.
func (a *ReadableAggregate) ForReadOnly() *ReadOnlyView {
	return &ReadOnlyView{agg: a}
}

// ForEvents returns the event-applying view over the shared state.
func (a *ReadableAggregate) ForEvents() *EventView {
	return &EventView{agg: a}
}

// ApplySnapshot overwrites the instance revision and replaces the shared
// state with the snapshot's. Applying the same snapshot twice yields the
// same result.
func (a *ReadableAggregate) ApplySnapshot(snapshot *Snapshot) error {
	if snapshot == nil {
		return ErrMissingSnapshot
	}
	a.revision = snapshot.Revision
	a.state = snapshot.State
	return nil
}

// applyEvent runs the event's reducer against the shared state and
// advances the instance revision to the event's revision. An event name
// the write model does not define fails, which distinguishes replaying
// the wrong aggregate type from normal use.
func (a *ReadableAggregate) applyEvent(event Event) error {
	reducer, ok := a.definition.Events[event.Name]
	if !ok {
		return NewUnknownEventError(a.contextName, a.ref.Name, event.Name)
	}
	if err := reducer(a.ForEvents(), event); err != nil {
		return fmt.Errorf("eventfold: reducer for %s.%s.%s: %w",
			a.contextName, a.ref.Name, event.Name, err)
	}
	a.revision = event.Metadata.Revision
	return nil
}

// ReadOnlyView exposes the aggregate state for reading only.
type ReadOnlyView struct {
	agg *ReadableAggregate
}

// State returns the shared aggregate state.
func (v *ReadOnlyView) State() State {
	return v.agg.state
}

// Exists reports whether the instance has any history.
func (v *ReadOnlyView) Exists() bool {
	return v.agg.Exists()
}

// EventView exposes the aggregate state to event reducers.
type EventView struct {
	agg *ReadableAggregate
}

// State returns the shared aggregate state. Reducers may mutate it in place.
func (v *EventView) State() State {
	return v.agg.state
}

// SetState deep-merges a partial update into the shared state.
func (v *EventView) SetState(partial State) {
	v.agg.state.Merge(partial)
}

// WritableAggregate extends ReadableAggregate with the command-applying
// view. It is constructed per command and owns the batch of uncommitted
// events the command produces.
type WritableAggregate struct {
	*ReadableAggregate

	command     *Command
	uncommitted []Event
}

// NewWritableAggregate constructs the aggregate projection targeted by a
// command.
func NewWritableAggregate(wm *WriteModel, cmd *Command) (*WritableAggregate, error) {
	if cmd == nil {
		return nil, ErrNilCommand
	}
	readable, err := NewReadableAggregate(wm, cmd.Context, cmd.Aggregate.Name, cmd.Aggregate.ID)
	if err != nil {
		return nil, err
	}
	return &WritableAggregate{
		ReadableAggregate: readable,
		command:           cmd,
	}, nil
}

// ForCommands returns the command-applying view over the shared state.
func (a *WritableAggregate) ForCommands() *CommandView {
	return &CommandView{agg: a}
}

// UncommittedEvents returns the events staged by the current command, in
// publish order.
func (a *WritableAggregate) UncommittedEvents() []Event {
	return a.uncommitted
}

// publishEvent builds an event, applies its reducer immediately and stages
// it. State visible to later publishes within the same command already
// reflects earlier events of the batch.
func (a *WritableAggregate) publishEvent(name string, data State) error {
	if _, ok := a.definition.Events[name]; !ok {
		return NewUnknownEventError(a.contextName, a.ref.Name, name)
	}

	owner := stringValue(a.state, "isAuthorized", "owner")
	if owner == "" {
		owner = a.command.User.ID
	}

	revision := a.revision + int64(len(a.uncommitted)) + 1
	event := newEvent(a.command, name, data, revision, Authorization{
		Owner:            owner,
		ForAuthenticated: boolValue(a.state, "isAuthorized", "events", name, "forAuthenticated"),
		ForPublic:        boolValue(a.state, "isAuthorized", "events", name, "forPublic"),
	})

	reducer := a.definition.Events[name]
	if err := reducer(a.ForEvents(), event); err != nil {
		return fmt.Errorf("eventfold: reducer for %s.%s.%s: %w",
			a.contextName, a.ref.Name, name, err)
	}

	a.uncommitted = append(a.uncommitted, event)
	return nil
}

// CommandView exposes the aggregate to command handlers.
type CommandView struct {
	agg *WritableAggregate
}

// State returns the shared aggregate state.
func (v *CommandView) State() State {
	return v.agg.state
}

// Exists reports whether the instance has any persisted history.
func (v *CommandView) Exists() bool {
	return v.agg.Exists()
}

// Publish stages a new event and applies it to the state immediately.
// Fails if the write model defines no reducer for the event name.
func (v *CommandView) Publish(name string, data State) error {
	return v.agg.publishEvent(name, data)
}

// TransferOwnership hands the aggregate to another user by publishing a
// transferredOwnership event. Fails if the recipient is missing or already
// the owner.
func (v *CommandView) TransferOwnership(data State) error {
	to, _ := data["to"].(string)
	if to == "" {
		return fmt.Errorf("%w: ownership recipient", ErrMissingData)
	}

	from := stringValue(v.agg.state, "isAuthorized", "owner")
	if to == from {
		return fmt.Errorf("eventfold: user %q already owns the aggregate", to)
	}

	return v.Publish(EventTransferredOwnership, State{"from": from, "to": to})
}

// Authorize updates the visibility flags of commands and events by
// publishing an authorized event. The payload must name known commands or
// events and use only the forAuthenticated and forPublic options.
func (v *CommandView) Authorize(data State) error {
	commands, hasCommands := asMap(data["commands"])
	events, hasEvents := asMap(data["events"])
	if !hasCommands && !hasEvents {
		return fmt.Errorf("%w: authorization payload", ErrMissingData)
	}

	payload := State{}
	if hasCommands {
		if err := v.validateAuthorizationOptions("command", commands, func(name string) bool {
			_, ok := v.agg.definition.Commands[name]
			return ok
		}); err != nil {
			return err
		}
		payload["commands"] = commands
	}
	if hasEvents {
		if err := v.validateAuthorizationOptions("event", events, func(name string) bool {
			_, ok := v.agg.definition.Events[name]
			return ok
		}); err != nil {
			return err
		}
		payload["events"] = events
	}

	return v.Publish(EventAuthorized, payload)
}

// validateAuthorizationOptions checks one commands/events section of an
// authorize payload against the write model and the fixed option
// vocabulary {forAuthenticated, forPublic}.
func (v *CommandView) validateAuthorizationOptions(kind string, section map[string]interface{}, known func(string) bool) error {
	for name, raw := range section {
		if !known(name) {
			return fmt.Errorf("eventfold: unknown %s %q in authorization payload", kind, name)
		}
		options, ok := asMap(raw)
		if !ok || len(options) == 0 {
			return fmt.Errorf("eventfold: authorization options for %s %q are missing", kind, name)
		}
		for option, value := range options {
			if option != "forAuthenticated" && option != "forPublic" {
				return fmt.Errorf("eventfold: unknown authorization option %q for %s %q", option, kind, name)
			}
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("eventfold: authorization option %q for %s %q must be a boolean", option, kind, name)
			}
		}
	}
	return nil
}
