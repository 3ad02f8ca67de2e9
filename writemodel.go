package eventfold

import (
	"context"
	"fmt"
)

// EventReducer applies one event to the aggregate state. Reducers may
// mutate the view's state directly or deep-merge a partial update through
// SetState; both are visible through every view.
type EventReducer func(view *EventView, event Event) error

// HandlerFunc handles one command against a loaded aggregate. Returning
// cmd.Reject(reason) rejects the command; any other non-nil error fails it.
type HandlerFunc func(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) error

// AuthorizeFunc decides whether a command may run at all. It is evaluated
// before the handler; returning false or an error rejects the command.
type AuthorizeFunc func(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) (bool, error)

// SchemaFunc validates a command payload before handling.
type SchemaFunc func(data State) error

// CommandDefinition is a normalized command definition: an ordered handler
// chain with an optional schema check and authorization guard. Use Single,
// Chain or Guarded to construct one; the three authoring shapes are
// normalized here at load time rather than branched on at call time.
type CommandDefinition struct {
	handlers     []HandlerFunc
	isAuthorized AuthorizeFunc
	schema       SchemaFunc
}

// Single defines a command handled by one function.
func Single(fn HandlerFunc) *CommandDefinition {
	return &CommandDefinition{handlers: []HandlerFunc{fn}}
}

// Chain defines a command handled by an ordered middleware chain. The
// chain stops at the first handler that returns an error.
func Chain(fns ...HandlerFunc) *CommandDefinition {
	handlers := make([]HandlerFunc, len(fns))
	copy(handlers, fns)
	return &CommandDefinition{handlers: handlers}
}

// GuardedCommand is the strict authoring form: an explicit authorization
// guard evaluated before the handler, plus an optional payload schema.
type GuardedCommand struct {
	// Schema optionally validates the command payload. A validation error
	// rejects the command.
	Schema SchemaFunc

	// IsAuthorized is evaluated before Handle. Returning false or an
	// error rejects the command.
	IsAuthorized AuthorizeFunc

	// Handle processes the command.
	Handle HandlerFunc
}

// Guarded defines a command in the strict {schema, isAuthorized, handle} form.
func Guarded(g GuardedCommand) *CommandDefinition {
	return &CommandDefinition{
		handlers:     []HandlerFunc{g.Handle},
		isAuthorized: g.IsAuthorized,
		schema:       g.Schema,
	}
}

// AggregateDefinition declares one aggregate type: its initial state, its
// command definitions and its event reducers.
type AggregateDefinition struct {
	// InitialState seeds every new instance's state.
	InitialState State

	// Commands maps command names to their definitions.
	Commands map[string]*CommandDefinition

	// Events maps event names to their reducers.
	Events map[string]EventReducer
}

// ContextDefinition groups the aggregate types of one context.
type ContextDefinition struct {
	Aggregates map[string]*AggregateDefinition
}

// WriteModel is the fully loaded, read-only registry of every context and
// aggregate definition. It is constructed once at startup and shared by
// reference; it is never mutated afterwards.
type WriteModel struct {
	contexts map[string]*ContextDefinition
}

// NewWriteModel validates and normalizes the given context definitions.
// Normalization injects the built-in transferredOwnership and authorized
// reducers into every aggregate and guarantees the isAuthorized structure
// in every initial state.
func NewWriteModel(contexts map[string]*ContextDefinition) (*WriteModel, error) {
	if len(contexts) == 0 {
		return nil, fmt.Errorf("eventfold: write model has no contexts")
	}

	for contextName, contextDef := range contexts {
		if contextDef == nil || len(contextDef.Aggregates) == 0 {
			return nil, fmt.Errorf("eventfold: context %q has no aggregates", contextName)
		}
		for aggregateName, def := range contextDef.Aggregates {
			if def == nil {
				return nil, fmt.Errorf("eventfold: aggregate %s.%s has no definition", contextName, aggregateName)
			}
			for commandName, command := range def.Commands {
				if command == nil || len(command.handlers) == 0 {
					return nil, fmt.Errorf("eventfold: command %s.%s.%s has no handlers",
						contextName, aggregateName, commandName)
				}
				for i, fn := range command.handlers {
					if fn == nil {
						return nil, fmt.Errorf("eventfold: command %s.%s.%s has a nil handler at position %d",
							contextName, aggregateName, commandName, i)
					}
				}
			}

			normalizeAggregate(def)
		}
	}

	return &WriteModel{contexts: contexts}, nil
}

// normalizeAggregate injects the built-in reducers and the isAuthorized
// scaffold into an aggregate definition.
func normalizeAggregate(def *AggregateDefinition) {
	if def.InitialState == nil {
		def.InitialState = State{}
	}
	if def.Events == nil {
		def.Events = make(map[string]EventReducer)
	}

	authorization, ok := asMap(def.InitialState["isAuthorized"])
	if !ok {
		authorization = map[string]interface{}{}
		def.InitialState["isAuthorized"] = authorization
	}
	if _, ok := asMap(authorization["commands"]); !ok {
		authorization["commands"] = map[string]interface{}{}
	}
	if _, ok := asMap(authorization["events"]); !ok {
		authorization["events"] = map[string]interface{}{}
	}

	if _, ok := def.Events[EventTransferredOwnership]; !ok {
		def.Events[EventTransferredOwnership] = applyTransferredOwnership
	}
	if _, ok := def.Events[EventAuthorized]; !ok {
		def.Events[EventAuthorized] = applyAuthorized
	}
}

// applyTransferredOwnership is the built-in reducer seeding and updating
// the aggregate owner.
func applyTransferredOwnership(view *EventView, event Event) error {
	to, _ := event.Data["to"].(string)
	if to == "" {
		return fmt.Errorf("eventfold: transferredOwnership event without recipient")
	}
	view.SetState(State{
		"isAuthorized": State{"owner": to},
	})
	return nil
}

// applyAuthorized is the built-in reducer updating the per-command and
// per-event visibility flags.
func applyAuthorized(view *EventView, event Event) error {
	update := State{}
	if commands, ok := asMap(event.Data["commands"]); ok {
		update["commands"] = commands
	}
	if events, ok := asMap(event.Data["events"]); ok {
		update["events"] = events
	}
	view.SetState(State{"isAuthorized": update})
	return nil
}

// Context returns the named context definition.
func (wm *WriteModel) Context(name string) (*ContextDefinition, error) {
	contextDef, ok := wm.contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContext, name)
	}
	return contextDef, nil
}

// Aggregate returns the named aggregate definition within a context.
func (wm *WriteModel) Aggregate(contextName, aggregateName string) (*AggregateDefinition, error) {
	contextDef, err := wm.Context(contextName)
	if err != nil {
		return nil, err
	}
	def, ok := contextDef.Aggregates[aggregateName]
	if !ok {
		return nil, fmt.Errorf("%w: %q in context %q", ErrInvalidAggregate, aggregateName, contextName)
	}
	return def, nil
}

// ContextNames returns the names of all contexts in the write model.
func (wm *WriteModel) ContextNames() []string {
	names := make([]string, 0, len(wm.contexts))
	for name := range wm.contexts {
		names = append(names, name)
	}
	return names
}
