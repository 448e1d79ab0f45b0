//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemBackend stores keys in the macOS Keychain.
type SystemBackend struct {
	service     string
	accessGroup string
}

// NewSystemBackend creates a Keychain-backed key store for service. Items are
// placed in accessGroup when it is set. The fallback directory is only used
// on platforms without a Keychain.
func NewSystemBackend(service, accessGroup, _ string) Backend {
	return &SystemBackend{service: service, accessGroup: accessGroup}
}

// SetKey stores a key in the Keychain. Overwrites if it already exists.
func (b *SystemBackend) SetKey(id string, key []byte) error {
	// Update = delete + add
	_ = b.DeleteKey(id)

	item := gokeychain.NewGenericPassword(
		b.service,
		id,
		fmt.Sprintf("securestore: %s", id),
		key,
		b.accessGroup,
	)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := gokeychain.AddItem(item); err != nil {
		return fmt.Errorf("keychain add %q: %w", id, err)
	}
	return nil
}

// GetKey retrieves a key from the Keychain.
func (b *SystemBackend) GetKey(id string) ([]byte, error) {
	data, err := gokeychain.GetGenericPassword(b.service, id, "", b.accessGroup)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
		}
		return nil, fmt.Errorf("keychain get %q: %w", id, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return data, nil
}

// DeleteKey removes a key from the Keychain.
func (b *SystemBackend) DeleteKey(id string) error {
	item := gokeychain.NewItem()
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetService(b.service)
	item.SetAccount(id)
	if b.accessGroup != "" {
		item.SetAccessGroup(b.accessGroup)
	}
	err := gokeychain.DeleteItem(item)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w", id, err)
	}
	return nil
}
