package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite names an authenticated encryption construction.
type Suite string

const (
	SuiteAESGCM            Suite = "aes-256-gcm"
	SuiteXChaCha20Poly1305 Suite = "xchacha20-poly1305"
)

// DefaultSuite is used when no suite is configured.
const DefaultSuite = SuiteAESGCM

// Valid reports whether the suite is implemented.
func (s Suite) Valid() bool {
	return s == SuiteAESGCM || s == SuiteXChaCha20Poly1305
}

// NonceSize returns the nonce length for the suite, or 0 if unknown.
func (s Suite) NonceSize() int {
	switch s {
	case SuiteAESGCM:
		return GCMNonceSize
	case SuiteXChaCha20Poly1305:
		return XChaChaNonceSize
	}
	return 0
}

// Key gives scoped access to raw master key bytes. The callback must not
// retain the slice after it returns.
type Key interface {
	WithKey(fn func(key []byte) error) error
}

// Engine encrypts and decrypts payloads under one suite.
type Engine struct {
	suite Suite
	rand  io.Reader
}

// NewEngine returns an engine for suite. An empty suite selects DefaultSuite.
func NewEngine(suite Suite) (*Engine, error) {
	if suite == "" {
		suite = DefaultSuite
	}
	if !suite.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSuite, suite)
	}
	return &Engine{suite: suite, rand: rand.Reader}, nil
}

// Suite returns the engine's suite.
func (e *Engine) Suite() Suite {
	return e.suite
}

// Encrypt seals plaintext bound to ad and returns the ciphertext (with tag)
// and the fresh nonce used.
func (e *Engine) Encrypt(plaintext, ad []byte, key Key) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, e.suite.NonceSize())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	err = e.withAEAD(key, func(aead cipher.AEAD) error {
		ciphertext = aead.Seal(nil, nonce, plaintext, ad)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt with the same nonce and ad.
func (e *Engine) Decrypt(ciphertext, nonce, ad []byte, key Key) ([]byte, error) {
	if len(nonce) != e.suite.NonceSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), e.suite.NonceSize())
	}
	if len(ciphertext) < TagSize {
		return nil, ErrAuthenticationFailure
	}

	var plaintext []byte
	err := e.withAEAD(key, func(aead cipher.AEAD) error {
		out, err := aead.Open(nil, nonce, ciphertext, ad)
		if err != nil {
			return ErrAuthenticationFailure
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// withAEAD derives the data key from the master key and builds the AEAD. The
// derived key is zeroed before returning.
func (e *Engine) withAEAD(key Key, fn func(cipher.AEAD) error) error {
	return key.WithKey(func(master []byte) error {
		if len(master) != KeySize {
			return fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(master), KeySize)
		}

		dataKey, err := DeriveKey(master, nil, []byte(DataKeyContext), KeySize)
		if err != nil {
			return err
		}
		defer Zero(dataKey)

		aead, err := newAEAD(e.suite, dataKey)
		if err != nil {
			return err
		}
		return fn(aead)
	})
}

func newAEAD(suite Suite, key []byte) (cipher.AEAD, error) {
	switch suite {
	case SuiteAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil
	case SuiteXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create XChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSuite, suite)
}
