package workflow

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyRequirement is returned when a run is started with a blank
// requirement. No role is invoked.
var ErrEmptyRequirement = errors.New("requirement must not be empty")

// ErrMissingRole indicates a registry lacks one of the canonical workflow roles.
var ErrMissingRole = errors.New("registry is missing a workflow role")

// ErrInvalidRole indicates a role with an empty name.
var ErrInvalidRole = errors.New("role name must not be empty")

// ErrUnknownRole is returned when a selector names a role that is not registered.
var ErrUnknownRole = errors.New("unknown role")

// ErrInvalidMaxIterations indicates a message budget below the minimum of 4.
var ErrInvalidMaxIterations = errors.New("max iterations must be at least 4")

// ErrInvalidRetryPolicy indicates that a RetryPolicy has invalid configuration.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy: MaxAttempts must be >= 1 and MaxDelay >= BaseDelay")

// ErrNilInvoker is returned by New when no invoker is supplied.
var ErrNilInvoker = errors.New("invoker must not be nil")

// ErrNilRegistry is returned by New when no registry is supplied.
var ErrNilRegistry = errors.New("registry must not be nil")

// ErrReplayExhausted is returned by a ReplayInvoker asked for a turn the
// recording does not contain.
var ErrReplayExhausted = errors.New("replay: no recorded turn")

// ErrReplayMismatch indicates a replayed conversation diverged from its
// recording.
var ErrReplayMismatch = errors.New("replay mismatch")

// DuplicateRoleError is returned by Registry.Register when a role with the
// same name is already present.
type DuplicateRoleError struct {
	Name string
}

func (e *DuplicateRoleError) Error() string {
	return "duplicate role: " + e.Name
}

// MalformedOutputError is returned when a model reply cannot be used as a
// conversation message, such as an empty completion.
type MalformedOutputError struct {
	Role   string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed output from %s: %s", e.Role, e.Reason)
}

// InvokerErrorKind classifies invocation failures.
type InvokerErrorKind int

const (
	// KindProvider covers transport and provider API failures.
	KindProvider InvokerErrorKind = iota
	// KindTimeout means the per-turn timeout elapsed.
	KindTimeout
	// KindMalformed means the provider answered with unusable output.
	KindMalformed
)

func (k InvokerErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed_output"
	default:
		return "provider"
	}
}

// InvokerError reports a role invocation that failed after the retry policy
// was exhausted. The run that produced it terminates with ReasonInvokerError.
type InvokerError struct {
	Role     string
	Kind     InvokerErrorKind
	Attempts int
	Cause    error
}

func (e *InvokerError) Error() string {
	return fmt.Sprintf("invoke %s: %s error after %d attempt(s): %v", e.Role, e.Kind, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *InvokerError) Unwrap() error {
	return e.Cause
}

// classifyInvokeError maps an invocation failure to its kind. turnCtx is the
// per-turn context; its deadline firing while the parent is still live is a
// turn timeout.
func classifyInvokeError(err error, parent, turnCtx context.Context) InvokerErrorKind {
	var malformed *MalformedOutputError
	if errors.As(err, &malformed) {
		return KindMalformed
	}
	if parent.Err() == nil && errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindProvider
}
