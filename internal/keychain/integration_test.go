//go:build integration && darwin

package keychain

import (
	"bytes"
	"errors"
	"testing"
)

// Integration tests use the real macOS Keychain.
// Run with: go test -tags integration ./internal/keychain/
//
// Requires an unlocked login Keychain and an interactive session
// (first run may prompt for Keychain access approval).

func integrationBackend() *SystemBackend {
	return &SystemBackend{service: "com.securestore.test"}
}

func TestKeychainSetAndGet(t *testing.T) {
	b := integrationBackend()
	id := "integration-set-get"
	defer b.DeleteKey(id)

	if err := b.SetKey(id, []byte("hello-keychain")); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	got, err := b.GetKey(id)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if !bytes.Equal(got, []byte("hello-keychain")) {
		t.Errorf("expected 'hello-keychain', got %q", got)
	}
}

func TestKeychainOverwrite(t *testing.T) {
	b := integrationBackend()
	id := "integration-overwrite"
	defer b.DeleteKey(id)

	b.SetKey(id, []byte("first"))
	b.SetKey(id, []byte("second"))

	got, err := b.GetKey(id)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("expected 'second', got %q", got)
	}
}

func TestKeychainDelete(t *testing.T) {
	b := integrationBackend()
	id := "integration-delete"

	b.SetKey(id, []byte("to-delete"))
	b.DeleteKey(id)

	_, err := b.GetKey(id)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}
