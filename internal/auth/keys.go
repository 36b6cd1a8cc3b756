package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeyLength is the length of activation keys, reset keys and generated
// passwords.
const KeyLength = 20

// RandomKey returns a URL-safe random string of KeyLength characters.
func RandomKey() (string, error) {
	buf := make([]byte, KeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:KeyLength], nil
}
