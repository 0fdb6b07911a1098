package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"hash"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DigestBase64URL devuelve h(input) en base64url sin padding.
func DigestBase64URL(newHash func() hash.Hash, s string) string {
	h := newHash()
	h.Write([]byte(s))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
