package eventfold

import (
	"context"
	"errors"
)

// accessDeniedReason is the uniform reason surfaced for any authorization
// denial, deliberately free of detail about which check failed.
const accessDeniedReason = "Access denied."

// errAccessDenied marks an authorization denial inside the pre-process
// steps. The pipeline classifies any pre-process error as a rejection.
var errAccessDenied = errors.New(accessDeniedReason)

// IsAccessGrantedToCommand checks whether the user may send this command at
// all: authenticated users always may, anonymous users only if the command
// is flagged forPublic in the aggregate state.
func IsAccessGrantedToCommand(ctx context.Context, agg *WritableAggregate, cmd *Command) error {
	if cmd.User.IsAuthenticated() {
		return nil
	}
	if boolValue(agg.state, "isAuthorized", "commands", cmd.Name, "forPublic") {
		return nil
	}
	return errAccessDenied
}

// InitializeOwnership seeds a brand-new aggregate instance with a
// transferredOwnership event naming the sender as owner. It runs after the
// command-level check and before the aggregate-level check, so the sender
// of the first command owns the instance before ownership is evaluated.
func InitializeOwnership(ctx context.Context, agg *WritableAggregate, cmd *Command) error {
	if agg.Exists() || len(agg.UncommittedEvents()) > 0 {
		return nil
	}
	return agg.publishEvent(EventTransferredOwnership, State{"to": cmd.User.ID})
}

// IsAccessGrantedToAggregate checks whether the user may act on this
// aggregate instance. The owner always may; otherwise the command's
// forAuthenticated flag admits authenticated users and forPublic admits
// everyone.
func IsAccessGrantedToAggregate(ctx context.Context, agg *WritableAggregate, cmd *Command) error {
	owner := stringValue(agg.state, "isAuthorized", "owner")
	if owner != "" && owner == cmd.User.ID {
		return nil
	}
	if cmd.User.IsAuthenticated() && boolValue(agg.state, "isAuthorized", "commands", cmd.Name, "forAuthenticated") {
		return nil
	}
	if boolValue(agg.state, "isAuthorized", "commands", cmd.Name, "forPublic") {
		return nil
	}
	return errAccessDenied
}
