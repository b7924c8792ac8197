package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenBytes is the entropy of session and CSRF tokens (256 bits).
const TokenBytes = 32

// NewToken returns TokenBytes of crypto/rand output, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
