package eventfold

import (
	"context"
	"fmt"
)

// Services is the toolbox handed to command handlers and authorization
// guards. It exposes cross-aggregate reads and a logger scoped to the
// handling aggregate.
type Services struct {
	// App reads other aggregates' current state.
	App *App

	// Logger is scoped to "<context>.<aggregate>".
	Logger Logger
}

// App gives command handlers read access to other aggregates. Reads replay
// the target aggregate's full history on demand; they never observe the
// uncommitted events of the command being handled.
type App struct {
	writeModel *WriteModel
	repo       *Repository
}

// NewApp creates the cross-aggregate read facade.
func NewApp(wm *WriteModel, repo *Repository) *App {
	return &App{writeModel: wm, repo: repo}
}

// Read returns a copy of the named aggregate instance's current state.
// Reading an instance without history fails with ErrAggregateNotFound.
func (a *App) Read(ctx context.Context, contextName, aggregateName, id string) (State, error) {
	agg, err := a.repo.LoadAggregate(ctx, a.writeModel, contextName, aggregateName, id)
	if err != nil {
		return nil, err
	}
	if !agg.Exists() {
		return nil, NewAggregateNotFoundError(contextName, aggregateName, id)
	}
	return agg.state.Clone(), nil
}

// Handler dispatches a command to its definition in the write model and
// runs the handler chain against the loaded aggregate.
type Handler struct {
	writeModel *WriteModel
	repo       *Repository
	logger     Logger
}

// NewHandler creates a command handler over the given write model.
func NewHandler(wm *WriteModel, repo *Repository, logger Logger) *Handler {
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Handler{writeModel: wm, repo: repo, logger: logger}
}

// Handle runs the command's schema check, authorization guard and handler
// chain against the aggregate. A rejection propagates unchanged; any other
// handler error is classified as a command failure.
func (h *Handler) Handle(ctx context.Context, agg *WritableAggregate, cmd *Command) error {
	definition, ok := agg.definition.Commands[cmd.Name]
	if !ok {
		return NewCommandFailedError("unknown command",
			NewUnknownCommandError(cmd.Context, cmd.Aggregate.Name, cmd.Name))
	}

	scope := fmt.Sprintf("%s.%s", cmd.Context, cmd.Aggregate.Name)
	svc := &Services{
		App:    NewApp(h.writeModel, h.repo),
		Logger: ScopeLogger(h.logger, scope),
	}
	view := agg.ForCommands()

	if definition.schema != nil {
		if err := definition.schema(cmd.Data); err != nil {
			return NewCommandRejectedError(err.Error())
		}
	}

	if definition.isAuthorized != nil {
		granted, err := definition.isAuthorized(ctx, view, cmd, svc)
		if err != nil {
			return NewCommandRejectedError(err.Error())
		}
		if !granted {
			return NewCommandRejectedError("Access denied.")
		}
	}

	for _, handler := range definition.handlers {
		if err := handler(ctx, view, cmd, svc); err != nil {
			if IsRejection(err) {
				return err
			}
			h.logger.Error("command handler failed",
				"command", cmd.Name,
				"context", cmd.Context,
				"aggregate", cmd.Aggregate.Name,
				"aggregateId", cmd.Aggregate.ID,
				"error", err)
			return NewCommandFailedError("failed to handle command", err)
		}
	}

	return nil
}
