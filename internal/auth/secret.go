package auth

import (
	"encoding/base64"
	"strings"

	"filmbase.org/internal/apperr"
)

// ResolveSecret picks the signing key from configuration. A base64 secret
// wins over a plain one; neither being set is fatal.
func ResolveSecret(plain, encoded string) ([]byte, error) {
	if encoded = strings.TrimSpace(encoded); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindFatalConfiguration, err, "decode base64 token secret")
		}
		if len(key) == 0 {
			return nil, apperr.New(apperr.KindFatalConfiguration, "base64 token secret decodes to an empty key")
		}
		return key, nil
	}
	if plain = strings.TrimSpace(plain); plain != "" {
		return []byte(plain), nil
	}
	return nil, apperr.New(apperr.KindFatalConfiguration, "token secret is not configured: set a plain or base64 secret")
}
