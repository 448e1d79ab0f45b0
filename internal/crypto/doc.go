// Package crypto seals entry payloads with an authenticated cipher.
//
// Every payload is encrypted under a data key derived from the master key with
// HKDF-SHA-256, never under the master key itself. Two suites are supported:
//
//   - aes-256-gcm: AES-256 in GCM mode with a 12-byte random nonce (default).
//   - xchacha20-poly1305: XChaCha20-Poly1305 with a 24-byte random nonce.
//
// A nonce is drawn from crypto/rand for every encryption and stored next to
// the ciphertext. Any change to the ciphertext, the nonce or the associated
// data makes Decrypt fail with ErrAuthenticationFailure; no partial plaintext
// is ever returned.
package crypto
