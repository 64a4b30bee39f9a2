package common

import (
	"crypto/rand"
	"encoding/base64"
)

// MakeRandURLSafeString returns an unpadded URL-safe base64 string built from
// size random bytes. With size=16 the result carries 128 bits of entropy and
// is safe to embed in share links.
func MakeRandURLSafeString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
