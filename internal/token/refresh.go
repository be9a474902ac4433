package token

import (
	"crypto/rand"
	"encoding/base64"
)

const secretBytes = 64

// NewSecret draws a fresh opaque secret from a cryptographically secure
// random source. The value has no structure and is compared only by exact
// equality.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
