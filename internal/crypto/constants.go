package crypto

const (
	// KeySize is the size of master and data keys in bytes.
	KeySize = 32

	// GCMNonceSize is the size of an AES-GCM nonce in bytes.
	GCMNonceSize = 12
	// XChaChaNonceSize is the size of an XChaCha20-Poly1305 nonce in bytes.
	XChaChaNonceSize = 24
	// TagSize is the authentication tag size shared by both suites.
	TagSize = 16

	// DataKeyContext is the HKDF info string for entry data keys.
	DataKeyContext = "securestore:entry:v1"
)
