package policy

import "errors"

var (
	// ErrAccessDenied is matched by every denial surfaced to callers.
	ErrAccessDenied = errors.New("access denied")

	// ErrAuthenticationTimeout is returned when the authenticator does not
	// answer within the policy timeout.
	ErrAuthenticationTimeout = errors.New("authentication timed out")

	// ErrDenied is returned by an Authenticator that refuses the caller, for
	// example a dismissed prompt or a wrong passcode.
	ErrDenied = errors.New("authentication denied")

	// ErrNoPasscode is returned when no passcode has been configured.
	ErrNoPasscode = errors.New("no passcode configured")
)

// DeniedError carries the reason for a denial. It matches ErrAccessDenied.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "access denied: " + e.Reason
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}
