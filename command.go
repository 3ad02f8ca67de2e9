package eventfold

import (
	"github.com/google/uuid"
)

// AnonymousUserID is the user ID carried by unauthenticated commands.
const AnonymousUserID = "anonymous"

// CapabilityImpersonate is the token capability required to send commands
// on behalf of another user.
const CapabilityImpersonate = "can-impersonate"

// asUserKey is the custom-data key that requests impersonation.
const asUserKey = "asUser"

// AggregateRef identifies one aggregate instance by type name and ID.
type AggregateRef struct {
	// Name is the aggregate type within its context (e.g. "peerGroup").
	Name string `json:"name"`

	// ID is the unique identifier of the instance.
	ID string `json:"id"`
}

// User is the identity acting on a command.
type User struct {
	// ID identifies the user. AnonymousUserID for unauthenticated commands.
	ID string `json:"id"`

	// Token carries the user's verified token claims.
	Token map[string]interface{} `json:"token,omitempty"`
}

// IsAuthenticated reports whether the user is a real, signed-in identity.
func (u User) IsAuthenticated() bool {
	return u.ID != "" && u.ID != AnonymousUserID
}

// HasCapability reports whether the user's token carries the given
// capability claim with a true value.
func (u User) HasCapability(capability string) bool {
	if u.Token == nil {
		return false
	}
	granted, _ := u.Token[capability].(bool)
	return granted
}

// CommandMetadata carries contextual information about a command.
type CommandMetadata struct {
	// CorrelationID links the command and all events it causes.
	CorrelationID string `json:"correlationId,omitempty"`
}

// Command is an intent to change one aggregate instance. It is produced by
// an inbound transport and lives for exactly one pipeline run.
type Command struct {
	// ID is the unique command identifier. It becomes the causation ID of
	// every event the command produces.
	ID string `json:"id"`

	// Context is the name of the context the target aggregate belongs to.
	Context string `json:"context"`

	// Aggregate identifies the target aggregate instance.
	Aggregate AggregateRef `json:"aggregate"`

	// Name is the command name within the aggregate (e.g. "join").
	Name string `json:"name"`

	// Data is the command payload.
	Data State `json:"data,omitempty"`

	// User is the acting identity. Impersonation rewrites this field.
	User User `json:"user"`

	// Custom carries transport-level extras, including the impersonation
	// request under the "asUser" key.
	Custom map[string]interface{} `json:"custom,omitempty"`

	// Metadata carries contextual information.
	Metadata CommandMetadata `json:"metadata"`
}

// CommandOption configures a new Command.
type CommandOption func(*Command)

// WithUser sets the acting user.
func WithUser(user User) CommandOption {
	return func(c *Command) {
		c.User = user
	}
}

// WithCommandID overrides the generated command ID.
func WithCommandID(id string) CommandOption {
	return func(c *Command) {
		c.ID = id
	}
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(id string) CommandOption {
	return func(c *Command) {
		c.Metadata.CorrelationID = id
	}
}

// WithCustom sets a custom key-value pair on the command.
func WithCustom(key string, value interface{}) CommandOption {
	return func(c *Command) {
		if c.Custom == nil {
			c.Custom = make(map[string]interface{})
		}
		c.Custom[key] = value
	}
}

// AsUser requests that the command be run on behalf of another user. The
// pipeline grants the request only if the acting user's token carries the
// CapabilityImpersonate claim.
func AsUser(userID string) CommandOption {
	return WithCustom(asUserKey, userID)
}

// NewCommand creates a command for one aggregate instance. The command ID
// is generated, and the correlation ID defaults to the command ID.
func NewCommand(contextName string, aggregate AggregateRef, name string, data State, opts ...CommandOption) *Command {
	cmd := &Command{
		ID:        uuid.New().String(),
		Context:   contextName,
		Aggregate: aggregate,
		Name:      name,
		Data:      data,
		User:      User{ID: AnonymousUserID},
	}

	for _, opt := range opts {
		opt(cmd)
	}

	if cmd.Metadata.CorrelationID == "" {
		cmd.Metadata.CorrelationID = cmd.ID
	}

	return cmd
}

// Reject returns the domain-level rejection of this command with the given
// reason. Handlers return it to stop the chain; the pipeline turns it into
// a "<command>Rejected" event.
func (c *Command) Reject(reason string) error {
	return NewCommandRejectedError(reason)
}

// ImpersonationRequested reports whether the command asks to act as
// another user, and returns that user's ID.
func (c *Command) ImpersonationRequested() (string, bool) {
	if c.Custom == nil {
		return "", false
	}
	id, ok := c.Custom[asUserKey].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// impersonate swaps the acting user to the requested identity and clears
// the request flag. The impersonated user starts with no token claims.
func (c *Command) impersonate(userID string) {
	c.User = User{ID: userID}
	delete(c.Custom, asUserKey)
}
