package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/davsync/davsync/internal/ocsapi"
)

// BootstrapStep identifies which phase of the bootstrap negotiation a
// failure belongs to.
type BootstrapStep int

const (
	StepCapabilities BootstrapStep = iota
	StepIdentity
)

func (s BootstrapStep) String() string {
	switch s {
	case StepCapabilities:
		return "capabilities"
	case StepIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// BootstrapError wraps a failure of one bootstrap step.
type BootstrapError struct {
	Step BootstrapStep
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// BootstrapResult carries everything the negotiation produced. It lives
// only for the duration of session setup.
type BootstrapResult struct {
	Capabilities  map[string]any
	ServerVersion string
	UserID        string
	DisplayName   string
}

// bootstrapAPI is the slice of the server client the negotiator needs.
type bootstrapAPI interface {
	Capabilities(ctx context.Context) (*ocsapi.CapabilitiesResult, error)
	CurrentUser(ctx context.Context) (*ocsapi.Identity, error)
}

// Negotiator gates the sync phase behind the two-step bootstrap: fetch
// server capabilities, then the current user's identity, strictly in
// that order. Neither call is retried here.
type Negotiator struct {
	api bootstrapAPI
}

func NewNegotiator(api bootstrapAPI) *Negotiator {
	return &Negotiator{api: api}
}

// Negotiate runs both steps and stores the results on account. The
// identity call does not start until the capabilities call succeeded; a
// capabilities failure aborts the negotiation. An identity failure is
// fatal as well, for consistency with the capabilities branch.
func (n *Negotiator) Negotiate(ctx context.Context, account *ocsapi.Account) (*BootstrapResult, error) {
	caps, err := n.api.Capabilities(ctx)
	if err != nil {
		return nil, &BootstrapError{Step: StepCapabilities, Err: err}
	}

	account.SetCapabilities(caps.Capabilities)
	account.SetServerVersion(caps.ServerVersion)
	slog.Debug("server capabilities", "version", caps.ServerVersion)

	identity, err := n.api.CurrentUser(ctx)
	if err != nil {
		return nil, &BootstrapError{Step: StepIdentity, Err: err}
	}

	account.SetDavUser(identity.ID)
	account.SetDavDisplayName(identity.DisplayName)
	slog.Debug("server identity", "user", identity.ID, "display_name", identity.DisplayName)

	return &BootstrapResult{
		Capabilities:  caps.Capabilities,
		ServerVersion: caps.ServerVersion,
		UserID:        identity.ID,
		DisplayName:   identity.DisplayName,
	}, nil
}
