package password

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2idScheme verifies hashes in the PHC string format
// $argon2id$v=19$m=65536,t=3,p=2$salt$hash left over from an earlier
// deployment. It is deprecated: Hash always errors so the registry can never
// mint new argon2id hashes.
type argon2idScheme struct{}

func (argon2idScheme) Name() string { return "argon2id" }

func (argon2idScheme) Recognizes(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$argon2id$")
}

func (argon2idScheme) Hash(string) (string, error) {
	return "", errors.New("argon2id is deprecated for new hashes")
}

func (argon2idScheme) Verify(plaintext, encodedHash string) bool {
	salt, hash, memory, iterations, parallelism, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false
	}

	other := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, other) == 1
}

func decodeArgon2id(encodedHash string) (salt, hash []byte, memory, iterations uint32, parallelism uint8, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, errors.New("invalid argon2id hash format")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, errors.New("incompatible argon2 version")
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return nil, nil, 0, 0, 0, err
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	return salt, hash, memory, iterations, parallelism, nil
}
