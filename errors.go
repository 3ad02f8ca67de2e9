package eventfold

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrCommandRejected marks a domain-level, expected rejection of a
	// command (business rule, authorization denial, explicit reject).
	ErrCommandRejected = errors.New("eventfold: command rejected")

	// ErrCommandFailed marks an unexpected failure while handling a
	// command (programming error, handler fault, store conflict).
	ErrCommandFailed = errors.New("eventfold: command failed")

	// ErrInvalidContext indicates the write model has no matching context.
	ErrInvalidContext = errors.New("eventfold: invalid context")

	// ErrInvalidAggregate indicates the write model has no matching aggregate.
	ErrInvalidAggregate = errors.New("eventfold: invalid aggregate")

	// ErrUnknownEvent indicates an event name with no reducer in the write model.
	ErrUnknownEvent = errors.New("eventfold: unknown event")

	// ErrUnknownCommand indicates a command name with no definition in the write model.
	ErrUnknownCommand = errors.New("eventfold: unknown command")

	// ErrMissingData indicates a command or operation payload lacks required data.
	ErrMissingData = errors.New("eventfold: missing data")

	// ErrAggregateNotFound indicates a read of an aggregate that has no events.
	ErrAggregateNotFound = errors.New("eventfold: aggregate not found")

	// ErrMissingSnapshot indicates a nil snapshot was applied.
	ErrMissingSnapshot = errors.New("eventfold: missing snapshot")

	// ErrNilCommand indicates a nil command was passed.
	ErrNilCommand = errors.New("eventfold: nil command")

	// ErrBusClosed is returned when publishing on a closed bus.
	ErrBusClosed = errors.New("eventfold: bus is closed")
)

// CommandRejectedError is the expected, domain-level rejection of a command.
// It propagates unchanged through the handler chain and the pipeline and
// surfaces as a "<command>Rejected" event. It is never logged as an error.
type CommandRejectedError struct {
	Reason string
}

// Error returns the rejection reason.
func (e *CommandRejectedError) Error() string {
	return e.Reason
}

// Is reports whether this error matches the target error.
func (e *CommandRejectedError) Is(target error) bool {
	return target == ErrCommandRejected
}

// NewCommandRejectedError creates a new CommandRejectedError.
func NewCommandRejectedError(reason string) *CommandRejectedError {
	return &CommandRejectedError{Reason: reason}
}

// CommandFailedError wraps any unexpected error raised while handling a
// command. The original error is preserved as the cause and surfaces as a
// "<command>Failed" event.
type CommandFailedError struct {
	Reason string
	Cause  error
}

// Error returns the error message.
func (e *CommandFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

// Is reports whether this error matches the target error.
func (e *CommandFailedError) Is(target error) bool {
	return target == ErrCommandFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *CommandFailedError) Unwrap() error {
	return e.Cause
}

// NewCommandFailedError creates a new CommandFailedError.
func NewCommandFailedError(reason string, cause error) *CommandFailedError {
	return &CommandFailedError{Reason: reason, Cause: cause}
}

// UnknownEventError reports a publish of an event the write model does not define.
type UnknownEventError struct {
	Context   string
	Aggregate string
	Event     string
}

// Error returns the error message.
func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("eventfold: unknown event %q for aggregate %s.%s",
		e.Event, e.Context, e.Aggregate)
}

// Is reports whether this error matches the target error.
func (e *UnknownEventError) Is(target error) bool {
	return target == ErrUnknownEvent
}

// NewUnknownEventError creates a new UnknownEventError.
func NewUnknownEventError(context, aggregate, event string) *UnknownEventError {
	return &UnknownEventError{Context: context, Aggregate: aggregate, Event: event}
}

// UnknownCommandError reports a command the write model does not define.
type UnknownCommandError struct {
	Context   string
	Aggregate string
	Command   string
}

// Error returns the error message.
func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("eventfold: unknown command %q for aggregate %s.%s",
		e.Command, e.Context, e.Aggregate)
}

// Is reports whether this error matches the target error.
func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// NewUnknownCommandError creates a new UnknownCommandError.
func NewUnknownCommandError(context, aggregate, command string) *UnknownCommandError {
	return &UnknownCommandError{Context: context, Aggregate: aggregate, Command: command}
}

// AggregateNotFoundError reports a read of an aggregate with no history.
type AggregateNotFoundError struct {
	Context   string
	Aggregate string
	ID        string
}

// Error returns the error message.
func (e *AggregateNotFoundError) Error() string {
	return fmt.Sprintf("eventfold: aggregate %s.%s with id %q not found",
		e.Context, e.Aggregate, e.ID)
}

// Is reports whether this error matches the target error.
func (e *AggregateNotFoundError) Is(target error) bool {
	return target == ErrAggregateNotFound
}

// NewAggregateNotFoundError creates a new AggregateNotFoundError.
func NewAggregateNotFoundError(context, aggregate, id string) *AggregateNotFoundError {
	return &AggregateNotFoundError{Context: context, Aggregate: aggregate, ID: id}
}

// IsRejection reports whether err carries a domain-level rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCommandRejected)
}
