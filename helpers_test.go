package eventfold

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// newPlanningModel builds the write model used throughout the tests: a
// planning context with a peerGroup aggregate that can be started, joined
// and administered.
func newPlanningModel(t *testing.T) *WriteModel {
	t.Helper()

	wm, err := NewWriteModel(map[string]*ContextDefinition{
		"planning": {
			Aggregates: map[string]*AggregateDefinition{
				"peerGroup": {
					InitialState: State{
						"initialized":  false,
						"participants": []interface{}{},
						"isAuthorized": State{
							"commands": State{
								"start": State{"forPublic": true},
								"join":  State{"forAuthenticated": true},
							},
							"events": State{
								"started": State{"forPublic": true},
								"joined":  State{"forAuthenticated": true},
							},
						},
					},
					Commands: map[string]*CommandDefinition{
						"start": Single(handleStart),
						"join":  Single(handleJoin),
						"grantAccess": Single(func(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) error {
							return agg.Authorize(cmd.Data)
						}),
						"handOver": Single(func(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) error {
							return agg.TransferOwnership(cmd.Data)
						}),
						"breakdown": Single(func(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) error {
							return errors.New("boom")
						}),
					},
					Events: map[string]EventReducer{
						"started": applyStarted,
						"joined":  applyJoined,
					},
				},
			},
		},
	})
	require.NoError(t, err)

	return wm
}

func handleStart(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) error {
	if err := agg.Publish("started", State{
		"initiator":   cmd.Data["initiator"],
		"destination": cmd.Data["destination"],
	}); err != nil {
		return err
	}
	return agg.Publish("joined", State{"participant": cmd.Data["initiator"]})
}

func handleJoin(ctx context.Context, agg *CommandView, cmd *Command, svc *Services) error {
	participants, _ := agg.State()["participants"].([]interface{})
	for _, participant := range participants {
		if participant == cmd.Data["participant"] {
			return cmd.Reject("Participant had already joined.")
		}
	}
	return agg.Publish("joined", State{"participant": cmd.Data["participant"]})
}

func applyStarted(view *EventView, event Event) error {
	view.SetState(State{
		"initialized": true,
		"destination": event.Data["destination"],
	})
	return nil
}

func applyJoined(view *EventView, event Event) error {
	participants, _ := view.State()["participants"].([]interface{})
	view.State()["participants"] = append(participants, event.Data["participant"])
	return nil
}

// recordingBus is a Bus capturing published events in order. It can be
// told to fail when a specific event name is published.
type recordingBus struct {
	mu     sync.Mutex
	events []Event
	failOn string
	closed bool
}

func (b *recordingBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failOn != "" && event.Name == b.failOn {
		return errors.New("bus unavailable")
	}
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *recordingBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := make([]Event, len(b.events))
	copy(events, b.events)
	return events
}

func (b *recordingBus) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, len(b.events))
	for i, event := range b.events {
		names[i] = event.Name
	}
	return names
}
