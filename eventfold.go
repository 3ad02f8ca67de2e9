// Package eventfold provides the write side of a CQRS/event-sourcing runtime.
//
// eventfold validates, authorizes and handles client-submitted commands
// against event-sourced aggregates, persists the resulting domain events and
// publishes them to downstream buses. The read side (projections, queries)
// is out of scope; eventfold only ever persists events.
//
// # Write models
//
// A write model declares, per context and aggregate, the initial state, the
// command definitions and the event reducers:
//
//	wm, err := eventfold.NewWriteModel(map[string]*eventfold.ContextDefinition{
//	    "planning": {
//	        Aggregates: map[string]*eventfold.AggregateDefinition{
//	            "peerGroup": {
//	                InitialState: eventfold.State{"participants": []any{}},
//	                Commands: map[string]*eventfold.CommandDefinition{
//	                    "start": eventfold.Single(handleStart),
//	                    "join":  eventfold.Single(handleJoin),
//	                },
//	                Events: map[string]eventfold.EventReducer{
//	                    "started": applyStarted,
//	                    "joined":  applyJoined,
//	                },
//	            },
//	        },
//	    },
//	})
//
// Command handlers receive a command view over the aggregate and publish new
// events through it:
//
//	func handleStart(ctx context.Context, agg *eventfold.CommandView, cmd *eventfold.Command, svc *eventfold.Services) error {
//	    if err := agg.Publish("started", cmd.Data); err != nil {
//	        return err
//	    }
//	    return agg.Publish("joined", eventfold.State{"participant": cmd.Data["initiator"]})
//	}
//
// A handler rejects a command by returning cmd.Reject(reason); any other
// returned error is classified as a command failure.
//
// # Running commands
//
// The pipeline wires the repository, the authorization stages and the
// publisher together:
//
//	store := memory.NewStore()
//	repo := eventfold.NewRepository(store)
//	pub := eventfold.NewEventPublisher(eventBus, store, eventfold.WithFlowBus(flowBus))
//	pipeline := eventfold.NewPipeline(wm, repo, pub)
//
//	result, err := pipeline.Handle(ctx, cmd)
//
// A non-nil error from Handle is an infrastructure failure (store or bus
// down) and is fatal to the process. Domain-level rejections and failures
// are reported in the Result and surface to the requester as a synthetic
// "<command>Rejected" or "<command>Failed" event on both buses.
//
// # Durability
//
// For production use the PostgreSQL store:
//
//	store, err := postgres.NewStore(connStr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Events are published at least once. After a crash between save and
// publish, run the recovery scan once at startup to re-publish anything
// that was saved but never marked as published:
//
//	if err := pub.RecoverUnpublished(ctx); err != nil {
//	    log.Fatal(err)
//	}
package eventfold

// Version returns the library version string.
func Version() string {
	return "0.3.0"
}
