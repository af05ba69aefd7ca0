package core

import (
	"errors"
	"fmt"
)

// Configuration errors. They abort the current turn and are never retried.
var (
	// ErrUnknownAgent is returned when a message or peer call names an agent
	// that is not part of the team roster.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrMissingCredential is returned when a custom tool declares a required
	// credential that the credential store cannot resolve.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidTeam is returned by Team.Validate.
	ErrInvalidTeam = errors.New("invalid team")

	// ErrUnknownProvider is returned when an agent's model provider has no
	// registered adapter.
	ErrUnknownProvider = errors.New("unknown model provider")
)

// Runtime limits. They end the current hop or turn but are not configuration
// errors, so IsConfigError reports false for them.
var (
	// ErrMaxDepth is returned when an agent-to-agent hop would exceed the
	// configured conversation depth ceiling.
	ErrMaxDepth = errors.New("conversation depth exceeded")

	// ErrStepLimit is returned by StepLimiter once the per-turn step budget is spent.
	ErrStepLimit = errors.New("step limit exceeded")
)

// MissingCredentialError names the tool and credential that failed to resolve.
type MissingCredentialError struct {
	Tool       string
	Credential string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential %q required by tool %q", e.Credential, e.Tool)
}

// Unwrap lets errors.Is(err, ErrMissingCredential) match.
func (e *MissingCredentialError) Unwrap() error { return ErrMissingCredential }

// IsConfigError reports whether err is a configuration error that must abort
// the turn instead of being handed back to the model as tool output.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownAgent) ||
		errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrInvalidTeam) ||
		errors.Is(err, ErrUnknownProvider)
}

// UnknownAgentError wraps ErrUnknownAgent with the offending name.
func UnknownAgentError(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownAgent, name)
}
