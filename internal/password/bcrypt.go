package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type bcryptScheme struct{}

func (bcryptScheme) Name() string { return "bcrypt" }

func (bcryptScheme) Recognizes(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

func (bcryptScheme) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (bcryptScheme) Verify(plaintext, encodedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plaintext)) == nil
}
