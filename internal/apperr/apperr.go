// Package apperr defines the error taxonomy shared by the order, escrow,
// gate, interlock and admin services. Handlers map these onto HTTP codes;
// services match them with errors.As / errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError terminates the request without retry.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// TransitionError signals an illegal state change attempt. State is left
// unchanged.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition: illegal %s -> %s", e.From, e.To)
}

// Hint is the machine-readable next remediation step carried by a gate
// denial, so the caller can tell the user exactly what to do next.
type Hint string

const (
	HintVerifyAge      Hint = "verify_age"
	HintVerifyIdentity Hint = "verify_identity"
	HintLinkBank       Hint = "link_bank"
)

// GateDenied means the user's verification level is below what the action
// requires. User-recoverable; never auto-retried.
type GateDenied struct {
	Action string
	Hint   Hint
}

func (e *GateDenied) Error() string {
	return fmt.Sprintf("gate: %s denied, next step %s", e.Action, e.Hint)
}

// InterlockBlocked means guardian mode is active for the user. Financial
// actions are refused regardless of any other state.
type InterlockBlocked struct {
	UserID string
}

func (e *InterlockBlocked) Error() string { return "interlock: guardian mode active" }

type GatewayErrorKind string

const (
	GatewayTimeout     GatewayErrorKind = "timeout"
	GatewayDeclined    GatewayErrorKind = "declined"
	GatewayUnreachable GatewayErrorKind = "unreachable"
)

// GatewayError wraps a payment-gateway failure. Timeout means the outcome is
// unknown and must be resolved by a status check, never assumed.
type GatewayError struct {
	Kind GatewayErrorKind
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Kind, e.Err)
	}
	return "gateway " + string(e.Kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayTimeout reports whether err is a gateway timeout (unknown outcome).
func IsGatewayTimeout(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == GatewayTimeout
}

// ConcurrencyConflict is a stale conditional write: another transition landed
// between read and write. Recoverable by refetch-and-resubmit, never by a
// blind retry.
type ConcurrencyConflict struct {
	Entity string
}

func (e *ConcurrencyConflict) Error() string { return "conflict: stale " + e.Entity }

type NotFound struct {
	Entity string
}

func (e *NotFound) Error() string { return e.Entity + " not found" }
