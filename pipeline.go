package eventfold

import (
	"context"
	"errors"
)

// Outcome classifies how the pipeline disposed of a command.
type Outcome int

const (
	// OutcomeSuccess means the command's events were committed and published.
	OutcomeSuccess Outcome = iota

	// OutcomeRejected means a business rule or authorization check turned
	// the command down. Nothing was persisted.
	OutcomeRejected

	// OutcomeFailed means an unexpected error stopped the command. Nothing
	// was persisted.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the disposition of one command.
type Result struct {
	// Outcome classifies the disposition.
	Outcome Outcome

	// Events are the committed events, with store positions assigned. Empty
	// unless Outcome is OutcomeSuccess.
	Events []Event

	// Notification is the synthetic "<command>Rejected" or
	// "<command>Failed" event published to the requester. Nil on success.
	Notification *Event

	// Reason is the rejection or failure reason. Empty on success.
	Reason string
}

// HandleFunc processes one command and reports its disposition.
type HandleFunc func(ctx context.Context, cmd *Command) (Result, error)

// Middleware wraps command handling with cross-cutting behavior.
type Middleware func(next HandleFunc) HandleFunc

// Step is one pre- or post-processing hook run against the loaded
// aggregate. A step error rejects the command.
type Step func(ctx context.Context, agg *WritableAggregate, cmd *Command) error

// Pipeline runs commands end to end: validation, impersonation,
// authorization, handling, persistence and publishing. Domain rejections
// and unexpected failures are classified exactly once, here, and reported
// back as synthetic events; only infrastructure-fatal conditions surface as
// errors from Handle.
type Pipeline struct {
	writeModel  *WriteModel
	repo        *Repository
	publisher   *EventPublisher
	handler     *Handler
	logger      Logger
	middleware  []Middleware
	preProcess  []Step
	postProcess []Step
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// Use appends middleware to the pipeline. Middleware runs in the order
// added, each wrapping the next.
func Use(mw ...Middleware) PipelineOption {
	return func(p *Pipeline) {
		p.middleware = append(p.middleware, mw...)
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPreProcessSteps replaces the default pre-processing steps (the
// command-level access check, ownership initialization and aggregate-level
// access check).
func WithPreProcessSteps(steps ...Step) PipelineOption {
	return func(p *Pipeline) {
		p.preProcess = steps
	}
}

// WithPostProcessStep appends a step that runs after the handler chain and
// before persistence.
func WithPostProcessStep(step Step) PipelineOption {
	return func(p *Pipeline) {
		p.postProcess = append(p.postProcess, step)
	}
}

// NewPipeline creates a command pipeline over the given write model,
// repository and publisher.
func NewPipeline(wm *WriteModel, repo *Repository, publisher *EventPublisher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		writeModel: wm,
		repo:       repo,
		publisher:  publisher,
		logger:     &noopLogger{},
		preProcess: []Step{
			IsAccessGrantedToCommand,
			InitializeOwnership,
			IsAccessGrantedToAggregate,
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	p.handler = NewHandler(wm, repo, p.logger)

	return p
}

// Handle runs one command through the middleware chain and the pipeline.
// The returned error is non-nil only for infrastructure-fatal conditions
// (publishing failed after events were committed); every domain outcome,
// including rejections and failures, is reported in the Result.
func (p *Pipeline) Handle(ctx context.Context, cmd *Command) (Result, error) {
	handle := p.handle
	for i := len(p.middleware) - 1; i >= 0; i-- {
		handle = p.middleware[i](handle)
	}
	return handle(ctx, cmd)
}

func (p *Pipeline) handle(ctx context.Context, cmd *Command) (Result, error) {
	if cmd == nil {
		return Result{}, ErrNilCommand
	}

	// The target must exist in the write model before anything else runs.
	definition, err := p.writeModel.Aggregate(cmd.Context, cmd.Aggregate.Name)
	if err != nil {
		return p.dispose(ctx, cmd, NewCommandFailedError("invalid command target", err))
	}
	if _, ok := definition.Commands[cmd.Name]; !ok {
		return p.dispose(ctx, cmd, NewCommandFailedError("unknown command",
			NewUnknownCommandError(cmd.Context, cmd.Aggregate.Name, cmd.Name)))
	}

	if asUser, requested := cmd.ImpersonationRequested(); requested {
		if !cmd.User.HasCapability(CapabilityImpersonate) {
			return p.dispose(ctx, cmd, NewCommandRejectedError("Impersonation denied."))
		}
		cmd.impersonate(asUser)
	}

	agg, err := p.repo.LoadAggregateFor(ctx, p.writeModel, cmd)
	if err != nil {
		return p.dispose(ctx, cmd, NewCommandFailedError("failed to load aggregate", err))
	}

	for _, step := range p.preProcess {
		if err := step(ctx, agg, cmd); err != nil {
			return p.dispose(ctx, cmd, asRejection(err))
		}
	}

	if err := p.handler.Handle(ctx, agg, cmd); err != nil {
		return p.dispose(ctx, cmd, err)
	}

	for _, step := range p.postProcess {
		if err := step(ctx, agg, cmd); err != nil {
			return p.dispose(ctx, cmd, asRejection(err))
		}
	}

	committed, err := p.repo.SaveAggregate(ctx, agg)
	if err != nil {
		return p.dispose(ctx, cmd, NewCommandFailedError("failed to save aggregate", err))
	}

	if err := p.publisher.PublishEvents(ctx, agg.ID(), committed); err != nil {
		// Events are committed but not (fully) published; recovery at next
		// start closes the gap. This is the one infrastructure-fatal path.
		return Result{}, err
	}

	p.logger.Debug("command succeeded",
		"command", cmd.Name,
		"aggregateId", cmd.Aggregate.ID,
		"events", len(committed))

	return Result{Outcome: OutcomeSuccess, Events: committed}, nil
}

// dispose classifies a pipeline error as rejection or failure, publishes
// the matching synthetic event and reports the outcome. Classification
// happens exactly once, here at the pipeline boundary.
func (p *Pipeline) dispose(ctx context.Context, cmd *Command, err error) (Result, error) {
	var outcome Outcome
	var suffix, reason string

	var rejected *CommandRejectedError
	var failed *CommandFailedError
	switch {
	case errors.As(err, &rejected):
		outcome = OutcomeRejected
		suffix = RejectedSuffix
		reason = rejected.Reason
		p.logger.Info("command rejected",
			"command", cmd.Name,
			"aggregateId", cmd.Aggregate.ID,
			"reason", reason)
	case errors.As(err, &failed):
		outcome = OutcomeFailed
		suffix = FailedSuffix
		reason = failed.Reason
		p.logger.Error("command failed",
			"command", cmd.Name,
			"aggregateId", cmd.Aggregate.ID,
			"error", err)
	default:
		outcome = OutcomeFailed
		suffix = FailedSuffix
		reason = err.Error()
		p.logger.Error("command failed",
			"command", cmd.Name,
			"aggregateId", cmd.Aggregate.ID,
			"error", err)
	}

	notification := newEvent(cmd, cmd.Name+suffix, State{"reason": reason}, 0, Authorization{
		Owner: cmd.User.ID,
	})
	if err := p.publisher.PublishSynthetic(ctx, notification); err != nil {
		p.logger.Error("failed to publish command disposition",
			"event", notification.FullName(),
			"error", err)
	}

	return Result{
		Outcome:      outcome,
		Notification: &notification,
		Reason:       reason,
	}, nil
}

// asRejection wraps a pre/post-process error as a rejection, preserving an
// error that already carries a classification.
func asRejection(err error) error {
	if errors.Is(err, ErrCommandRejected) || errors.Is(err, ErrCommandFailed) {
		return err
	}
	return NewCommandRejectedError(err.Error())
}
