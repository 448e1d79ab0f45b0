package store

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benaskins/securestore/internal/crypto"
	"github.com/benaskins/securestore/internal/policy"
)

// MaxIDLength is the longest identifier accepted, in bytes.
const MaxIDLength = 255

// adVersion prefixes associated data so the binding format can evolve.
const adVersion = "securestore:v1"

// Record is the persisted form of an entry. Payload is always ciphertext.
type Record struct {
	ID         string       `json:"id"`
	Policy     policy.Tag   `json:"policy"`
	Suite      crypto.Suite `json:"suite"`
	Nonce      []byte       `json:"nonce"`
	Ciphertext []byte       `json:"ciphertext"`
	Version    uint64       `json:"version"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Info describes an entry without exposing its payload.
type Info struct {
	ID        string       `json:"id"`
	Policy    policy.Tag   `json:"policy"`
	Suite     crypto.Suite `json:"suite"`
	Version   uint64       `json:"version"`
	Size      int          `json:"size"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (r *Record) info() Info {
	size := len(r.Ciphertext) - crypto.TagSize
	if size < 0 {
		size = 0
	}
	return Info{
		ID:        r.ID,
		Policy:    r.Policy,
		Suite:     r.Suite,
		Version:   r.Version,
		Size:      size,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// associatedData binds a ciphertext to its id, policy tag and cipher suite.
// Moving a record to another id or relabelling it breaks authentication.
func associatedData(id string, tag policy.Tag, suite crypto.Suite) []byte {
	return []byte(adVersion + "\x00" + id + "\x00" + string(tag) + "\x00" + string(suite))
}

// ValidateID checks that id can be stored.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case len(id) > MaxIDLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, MaxIDLength)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidID)
	case strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidID)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: contains a path separator", ErrInvalidID)
	}
	return nil
}
