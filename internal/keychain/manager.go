package keychain

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// MasterKeySize is the length of the master key in bytes.
const MasterKeySize = 32

// KeyHandle is an opaque reference to the master key. The key bytes never
// leave the handle except for the duration of a WithKey callback.
type KeyHandle struct {
	mu     sync.RWMutex
	key    []byte
	locked bool
}

func newKeyHandle(key []byte, logger *slog.Logger) *KeyHandle {
	h := &KeyHandle{key: key}
	if err := lockMemory(key); err != nil {
		logger.Debug("could not lock key memory", "error", err)
	} else {
		h.locked = true
	}
	return h
}

// WithKey calls fn with the raw key. fn must not retain the slice.
func (h *KeyHandle) WithKey(fn func(key []byte) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.key == nil {
		return ErrKeyDestroyed
	}
	return fn(h.key)
}

func (h *KeyHandle) destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.key {
		h.key[i] = 0
	}
	if h.locked {
		_ = unlockMemory(h.key)
		h.locked = false
	}
	h.key = nil
}

// keyLoad is one in-flight load-or-create of the master key. Waiters share it.
type keyLoad struct {
	done   chan struct{}
	handle *KeyHandle
	err    error
}

// Manager lazily loads or creates the master key in a Backend and hands out a
// single shared KeyHandle for the life of the process.
type Manager struct {
	backend Backend
	id      string
	rand    io.Reader
	logger  *slog.Logger

	mu      sync.Mutex
	handle  *KeyHandle
	loading *keyLoad
}

// NewManager creates a key manager that keeps the master key for service in
// backend.
func NewManager(backend Backend, service string) *Manager {
	return &Manager{
		backend: backend,
		id:      service + ".master-key",
		rand:    rand.Reader,
		logger:  slog.With("component", "keychain"),
	}
}

// GetOrCreateMasterKey returns the master key handle, creating and persisting
// a new key on first use. Concurrent callers share one backend round trip and
// receive the same handle. If ctx ends first the caller gets
// ErrKeystoreUnavailable; the load continues and later callers reuse it.
func (m *Manager) GetOrCreateMasterKey(ctx context.Context) (*KeyHandle, error) {
	m.mu.Lock()
	if m.handle != nil {
		h := m.handle
		m.mu.Unlock()
		return h, nil
	}
	load := m.loading
	if load == nil {
		load = &keyLoad{done: make(chan struct{})}
		m.loading = load
		go m.load(load)
	}
	m.mu.Unlock()

	select {
	case <-load.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeystoreUnavailable, ctx.Err())
	}
	if load.err != nil {
		return nil, load.err
	}
	return load.handle, nil
}

func (m *Manager) load(load *keyLoad) {
	key, err := m.loadOrCreate()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		load.err = err
	} else {
		load.handle = newKeyHandle(key, m.logger)
		m.handle = load.handle
	}
	m.loading = nil
	close(load.done)
}

func (m *Manager) loadOrCreate() ([]byte, error) {
	key, err := m.backend.GetKey(m.id)
	if err == nil {
		if len(key) != MasterKeySize {
			return nil, fmt.Errorf("%w: stored master key has %d bytes, want %d", ErrKeystoreUnavailable, len(key), MasterKeySize)
		}
		m.logger.Debug("master key loaded", "id", m.id)
		return key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrKeystoreUnavailable, err)
	}

	key = make([]byte, MasterKeySize)
	if _, err := io.ReadFull(m.rand, key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}
	if err := m.backend.SetKey(m.id, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeystoreUnavailable, err)
	}
	m.logger.Info("master key created", "id", m.id)
	return key, nil
}

// Reset destroys the master key in memory and in the backend. Entries
// encrypted under it become unreadable.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	load := m.loading
	m.mu.Unlock()
	if load != nil {
		select {
		case <-load.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		m.handle.destroy()
		m.handle = nil
	}
	if err := m.backend.DeleteKey(m.id); err != nil {
		return fmt.Errorf("%w: %w", ErrKeystoreUnavailable, err)
	}
	m.logger.Info("master key destroyed", "id", m.id)
	return nil
}
