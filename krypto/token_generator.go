package krypto

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecureToken returns length random bytes from crypto/rand, hex
// encoded (so the string is 2*length characters).
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
