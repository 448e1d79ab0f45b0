// Package keychain owns the master key and the platform keystore it lives in.
//
// On macOS keys are stored as generic passwords with:
//   - Service: the configured service name (default "com.securestore")
//   - Account: the key id (e.g. "com.securestore.master-key")
//   - Label: "securestore: <id>" (for Keychain Access.app visibility)
//
// Keys are scoped with kSecAttrAccessibleWhenUnlockedThisDeviceOnly:
// never synced to iCloud, never available when the machine is locked.
// Elsewhere keys live in 0600 files under the data directory.
package keychain

import "errors"

var (
	// ErrKeyNotFound is returned by a Backend when no key exists for an id.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeystoreUnavailable is returned when the platform keystore cannot be
	// reached or returns unusable material. Callers may retry.
	ErrKeystoreUnavailable = errors.New("keystore unavailable")

	// ErrKeyDestroyed is returned when a handle is used after Reset.
	ErrKeyDestroyed = errors.New("key material destroyed")
)

// Backend is the platform secure-storage capability. Implementations store
// opaque key bytes by id and must return ErrKeyNotFound for absent ids.
type Backend interface {
	SetKey(id string, key []byte) error
	GetKey(id string) ([]byte, error)
	DeleteKey(id string) error
}
