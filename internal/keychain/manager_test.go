package keychain

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingBackend wraps a Backend and counts calls.
type countingBackend struct {
	Backend
	gets atomic.Int32
	sets atomic.Int32
}

func (b *countingBackend) GetKey(id string) ([]byte, error) {
	b.gets.Add(1)
	return b.Backend.GetKey(id)
}

func (b *countingBackend) SetKey(id string, key []byte) error {
	b.sets.Add(1)
	return b.Backend.SetKey(id, key)
}

// brokenBackend fails every call.
type brokenBackend struct{}

func (brokenBackend) SetKey(string, []byte) error { return errors.New("locked") }
func (brokenBackend) GetKey(string) ([]byte, error) {
	return nil, errors.New("locked")
}
func (brokenBackend) DeleteKey(string) error { return errors.New("locked") }

// blockingBackend blocks GetKey until release is closed.
type blockingBackend struct {
	*MemoryBackend
	release chan struct{}
}

func (b *blockingBackend) GetKey(id string) ([]byte, error) {
	<-b.release
	return b.MemoryBackend.GetKey(id)
}

func keyBytes(t *testing.T, h *KeyHandle) []byte {
	t.Helper()
	var out []byte
	if err := h.WithKey(func(k []byte) error {
		out = bytes.Clone(k)
		return nil
	}); err != nil {
		t.Fatalf("WithKey: %v", err)
	}
	return out
}

func TestManagerCreatesAndPersistsKey(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend, "com.securestore.test")

	h, err := m.GetOrCreateMasterKey(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateMasterKey: %v", err)
	}

	stored, err := backend.GetKey("com.securestore.test.master-key")
	if err != nil {
		t.Fatalf("backend GetKey: %v", err)
	}
	if len(stored) != MasterKeySize {
		t.Fatalf("stored key length = %d, want %d", len(stored), MasterKeySize)
	}
	if !bytes.Equal(keyBytes(t, h), stored) {
		t.Error("handle key differs from stored key")
	}
}

func TestManagerReusesExistingKey(t *testing.T) {
	backend := NewMemoryBackend()
	existing := bytes.Repeat([]byte{7}, MasterKeySize)
	backend.SetKey("svc.master-key", existing)

	h, err := NewManager(backend, "svc").GetOrCreateMasterKey(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateMasterKey: %v", err)
	}
	if !bytes.Equal(keyBytes(t, h), existing) {
		t.Error("expected existing key to be loaded")
	}
}

func TestManagerConcurrentCallersShareHandle(t *testing.T) {
	backend := &countingBackend{Backend: NewMemoryBackend()}
	m := NewManager(backend, "svc")

	const n = 32
	handles := make([]*KeyHandle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.GetOrCreateMasterKey(context.Background())
			if err != nil {
				t.Errorf("GetOrCreateMasterKey: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if got := backend.sets.Load(); got != 1 {
		t.Errorf("expected 1 key creation, got %d", got)
	}
}

func TestManagerBackendFailure(t *testing.T) {
	m := NewManager(brokenBackend{}, "svc")

	_, err := m.GetOrCreateMasterKey(context.Background())
	if !errors.Is(err, ErrKeystoreUnavailable) {
		t.Errorf("expected ErrKeystoreUnavailable, got %v", err)
	}
}

func TestManagerRetriesAfterFailure(t *testing.T) {
	backend := &countingBackend{Backend: NewMemoryBackend()}
	m := NewManager(backend, "svc")
	m.backend = brokenBackend{}

	if _, err := m.GetOrCreateMasterKey(context.Background()); err == nil {
		t.Fatal("expected first call to fail")
	}

	m.backend = backend
	if _, err := m.GetOrCreateMasterKey(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestManagerRejectsCorruptKey(t *testing.T) {
	backend := NewMemoryBackend()
	backend.SetKey("svc.master-key", []byte("short"))

	_, err := NewManager(backend, "svc").GetOrCreateMasterKey(context.Background())
	if !errors.Is(err, ErrKeystoreUnavailable) {
		t.Errorf("expected ErrKeystoreUnavailable, got %v", err)
	}
}

func TestManagerContextDeadline(t *testing.T) {
	backend := &blockingBackend{MemoryBackend: NewMemoryBackend(), release: make(chan struct{})}
	m := NewManager(backend, "svc")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.GetOrCreateMasterKey(ctx)
	if !errors.Is(err, ErrKeystoreUnavailable) {
		t.Errorf("expected ErrKeystoreUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", err)
	}

	close(backend.release)
	if _, err := m.GetOrCreateMasterKey(context.Background()); err != nil {
		t.Fatalf("expected load to complete after release, got %v", err)
	}
}

func TestManagerReset(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend, "svc")
	ctx := context.Background()

	h1, _ := m.GetOrCreateMasterKey(ctx)
	first := keyBytes(t, h1)

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := h1.WithKey(func([]byte) error { return nil }); !errors.Is(err, ErrKeyDestroyed) {
		t.Errorf("expected ErrKeyDestroyed on old handle, got %v", err)
	}
	if _, err := backend.GetKey("svc.master-key"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected key removed from backend, got %v", err)
	}

	h2, err := m.GetOrCreateMasterKey(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateMasterKey after reset: %v", err)
	}
	if bytes.Equal(keyBytes(t, h2), first) {
		t.Error("expected a new key after reset")
	}
}
