package utils

import (
	"crypto/rand"

	"github.com/jxskiss/base62"
)

const secretBytes = 32

// RandomSecret returns a base62 encoded 256 bit secret, long enough for the
// issuer's minimum secret length.
func RandomSecret() string {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base62.EncodeToString(buf)
}

// NewAPIKeyPair returns a fresh API key and its secret.
func NewAPIKeyPair() (apiKey string, secret string) {
	return NewGuid(APIKeyPrefix), RandomSecret()
}
