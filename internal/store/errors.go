package store

import (
	"errors"

	"github.com/benaskins/securestore/internal/crypto"
	"github.com/benaskins/securestore/internal/keychain"
	"github.com/benaskins/securestore/internal/policy"
)

var (
	// ErrNotFound is returned when no entry exists for an id.
	ErrNotFound = errors.New("entry not found")

	// ErrStorageFull is returned when a write would exceed the configured
	// limits or the backing store has no space left.
	ErrStorageFull = errors.New("storage full")

	// ErrPolicyViolation is returned for an unknown policy tag or an attempt
	// to change the tag of an existing entry.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrInvalidID is returned for identifiers the store cannot hold.
	ErrInvalidID = errors.New("invalid entry id")
)

// Errors produced by the collaborators, re-exported so callers only need
// this package to classify a failure.
var (
	ErrAccessDenied          = policy.ErrAccessDenied
	ErrAuthenticationTimeout = policy.ErrAuthenticationTimeout
	ErrAuthenticationFailure = crypto.ErrAuthenticationFailure
	ErrKeystoreUnavailable   = keychain.ErrKeystoreUnavailable
)
