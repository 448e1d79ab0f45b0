package crypto

import "errors"

var (
	// ErrAuthenticationFailure is returned when a ciphertext, nonce or its
	// associated data does not authenticate under the key.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrInvalidKeySize is returned when the master key has the wrong length.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when a stored nonce has the wrong length
	// for its suite.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrUnknownSuite is returned for a cipher suite name this build does not
	// implement.
	ErrUnknownSuite = errors.New("unknown cipher suite")
)
