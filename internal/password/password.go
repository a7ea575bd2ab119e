package password

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// bcrypt rejects inputs longer than 72 bytes; anything above that is reduced
// to a hex SHA-256 digest before hashing. The same rule must run on both the
// hash and verify paths or long passwords can never verify.
const preHashThreshold = 72

// Scheme is one hashing algorithm known to the Hasher. Deprecated schemes
// stay in the registry so stored hashes keep verifying, but new hashes only
// ever use the current scheme.
type Scheme interface {
	Name() string
	// Recognizes reports whether the encoded hash was produced by this scheme.
	Recognizes(encodedHash string) bool
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) bool
}

// Hasher hashes with a single current scheme and verifies against every
// registered scheme. It is immutable after construction and safe for
// concurrent use.
type Hasher struct {
	current Scheme
	schemes []Scheme
}

// New returns a Hasher that hashes with bcrypt and additionally verifies
// legacy argon2id hashes.
func New() *Hasher {
	current := bcryptScheme{}
	return &Hasher{
		current: current,
		schemes: []Scheme{current, argon2idScheme{}},
	}
}

// Hash returns a salted one-way hash of plaintext using the current scheme.
func (h *Hasher) Hash(plaintext string) (string, error) {
	return h.current.Hash(normalize(plaintext))
}

// Verify reports whether plaintext matches encodedHash under any registered
// scheme. A malformed or unrecognized hash is a failed verification, never an
// error.
func (h *Hasher) Verify(plaintext, encodedHash string) bool {
	encodedHash = strings.TrimSpace(encodedHash)
	if encodedHash == "" {
		return false
	}

	plaintext = normalize(plaintext)
	for _, scheme := range h.schemes {
		if scheme.Recognizes(encodedHash) {
			return scheme.Verify(plaintext, encodedHash)
		}
	}

	return false
}

// NeedsRehash reports whether encodedHash was produced by a deprecated scheme
// and should be re-hashed with the current one on next successful login.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	return !h.current.Recognizes(encodedHash)
}

func normalize(plaintext string) string {
	if len(plaintext) <= preHashThreshold {
		return plaintext
	}

	digest := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(digest[:])
}
