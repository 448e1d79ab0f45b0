package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/benaskins/securestore/internal/keychain"
	"golang.org/x/crypto/bcrypt"
)

// MinPasscodeLength is the shortest passcode PasscodeStore accepts.
const MinPasscodeLength = 4

// PasscodeStore keeps a bcrypt hash of the store passcode in a keystore
// backend, next to the master key.
type PasscodeStore struct {
	backend keychain.Backend
	id      string
}

// NewPasscodeStore returns a passcode store for service in backend.
func NewPasscodeStore(backend keychain.Backend, service string) *PasscodeStore {
	return &PasscodeStore{backend: backend, id: service + ".passcode"}
}

// Set replaces the passcode.
func (s *PasscodeStore) Set(passcode []byte) error {
	if len(passcode) < MinPasscodeLength {
		return fmt.Errorf("passcode must be at least %d characters", MinPasscodeLength)
	}
	hash, err := bcrypt.GenerateFromPassword(passcode, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing passcode: %w", err)
	}
	if err := s.backend.SetKey(s.id, hash); err != nil {
		return fmt.Errorf("storing passcode: %w", err)
	}
	return nil
}

// Verify reports whether passcode matches the stored hash. It returns
// ErrNoPasscode if none was set.
func (s *PasscodeStore) Verify(passcode []byte) (bool, error) {
	hash, err := s.backend.GetKey(s.id)
	if err != nil {
		if errors.Is(err, keychain.ErrKeyNotFound) {
			return false, ErrNoPasscode
		}
		return false, fmt.Errorf("loading passcode: %w", err)
	}
	err = bcrypt.CompareHashAndPassword(hash, passcode)
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("comparing passcode: %w", err)
	}
	return true, nil
}

// PromptFunc asks the user for a passcode.
type PromptFunc func(ctx context.Context, tag Tag) ([]byte, error)

// PasscodeAuthenticator proves the passcode factor, either from material the
// caller supplied or by prompting. It cannot prove biometrics. DeviceUnlocked
// is reported as configured: interactive sessions run on an unlocked device.
type PasscodeAuthenticator struct {
	Store          *PasscodeStore
	Prompt         PromptFunc
	DeviceUnlocked bool
}

func (a *PasscodeAuthenticator) Authenticate(ctx context.Context, caller Caller, tag Tag) (Factors, error) {
	f := Factors{DeviceUnlocked: a.DeviceUnlocked}
	if !tag.NeedsPasscode() {
		return f, nil
	}

	passcode := caller.Passcode
	if len(passcode) == 0 && a.Prompt != nil {
		p, err := a.Prompt(ctx, tag)
		if err != nil {
			return f, fmt.Errorf("%w: %w", ErrDenied, err)
		}
		passcode = p
	}
	if len(passcode) == 0 {
		return f, nil
	}

	ok, err := a.Store.Verify(passcode)
	if err != nil {
		return f, fmt.Errorf("%w: %w", ErrDenied, err)
	}
	if !ok {
		return f, fmt.Errorf("%w: incorrect passcode", ErrDenied)
	}
	f.Passcode = true
	return f, nil
}

// CanSatisfy reports whether tag can be met without biometrics.
func (a *PasscodeAuthenticator) CanSatisfy(tag Tag) bool {
	switch tag {
	case TagNone:
		return true
	case TagDeviceUnlock:
		return a.DeviceUnlocked
	case TagBiometricOrPasscode:
		return a.Store != nil
	}
	return false
}
