package password

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/argon2"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	hasher := New()

	passwords := []string{
		"correct horse battery staple",
		"superduper",
		"пароль-с-юникодом",
		strings.Repeat("a", 72),
		strings.Repeat("a", 73),
		strings.Repeat("long-password-", 20),
	}

	for _, p := range passwords {
		hash, err := hasher.Hash(p)
		require.NoError(t, err, "hash %q", p)
		assert.True(t, hasher.Verify(p, hash), "verify %q", p)
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	t.Parallel()

	hasher := New()

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)

	assert.False(t, hasher.Verify("incorrect horse", hash))
	assert.False(t, hasher.Verify("", hash))
}

func TestVerify_LongPasswordNormalization(t *testing.T) {
	t.Parallel()

	hasher := New()
	long := strings.Repeat("correct horse battery staple ", 4) // 116 bytes

	hash, err := hasher.Hash(long)
	require.NoError(t, err)

	// The original long input must verify.
	assert.True(t, hasher.Verify(long, hash))

	// The stored hash is computed over the hex SHA-256 digest, so the digest
	// value itself verifies too.
	digest := sha256.Sum256([]byte(long))
	assert.True(t, hasher.Verify(hex.EncodeToString(digest[:]), hash))

	// A different long password does not.
	assert.False(t, hasher.Verify(strings.Repeat("wrong horse battery staple ", 4), hash))
}

func TestVerify_MalformedHash(t *testing.T) {
	t.Parallel()

	hasher := New()

	for _, hash := range []string{
		"",
		"   ",
		"not-a-hash",
		"$2b$10$tooshort",
		"$argon2id$v=19$broken",
		"$md5$whatever",
	} {
		assert.False(t, hasher.Verify("password", hash), "hash %q", hash)
	}
}

func TestVerify_LegacyArgon2id(t *testing.T) {
	t.Parallel()

	hasher := New()
	encoded := argon2idFixture("legacy-password")

	assert.True(t, hasher.Verify("legacy-password", encoded))
	assert.False(t, hasher.Verify("wrong-password", encoded))
	assert.True(t, hasher.NeedsRehash(encoded))
}

func TestNeedsRehash_CurrentScheme(t *testing.T) {
	t.Parallel()

	hasher := New()

	hash, err := hasher.Hash("password")
	require.NoError(t, err)

	assert.False(t, hasher.NeedsRehash(hash))
}

func argon2idFixture(plaintext string) string {
	salt := []byte("fixed-test-salt!")
	var (
		memory      uint32 = 64 * 1024
		iterations  uint32 = 1
		parallelism uint8  = 2
	)
	key := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, 32)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}
