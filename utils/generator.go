package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecureToken returns a hex token built from n random bytes,
// suitable for password-reset links.
func GenerateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
