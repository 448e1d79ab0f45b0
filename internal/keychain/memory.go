package keychain

import (
	"bytes"
	"fmt"
	"sync"
)

// MemoryBackend is an in-memory Backend for tests and throwaway stores.
type MemoryBackend struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{keys: make(map[string][]byte)}
}

func (b *MemoryBackend) SetKey(id string, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[id] = bytes.Clone(key)
	return nil
}

func (b *MemoryBackend) GetKey(id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return bytes.Clone(key), nil
}

func (b *MemoryBackend) DeleteKey(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.keys, id)
	return nil
}
