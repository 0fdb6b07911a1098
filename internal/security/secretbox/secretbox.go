// Package secretbox cifra secretos de clientes en reposo (AES-256-GCM).
//
// Formato almacenado: "{cipher}" + base64(nonce) + "|" + base64(ciphertext).
// Un valor sin el prefijo se considera texto plano (útil en dev/fs).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// EnvMasterKey es la variable con la clave maestra (base64, hex o raw de 32 bytes).
	EnvMasterKey = "SECRETBOX_MASTER_KEY"
	// CipherPrefix marca un secreto cifrado.
	CipherPrefix = "{cipher}"

	nonceSizeGCM      = 12
	requiredKeyLength = 32
	sep               = "|"
)

var (
	ErrNoMasterKey = errors.New("secretbox: master key not configured")
	ErrFormat      = errors.New("secretbox: invalid format, expected base64(nonce)|base64(ciphertext)")
)

// Box abre y sella secretos con una clave maestra. Es seguro para uso concurrente
// (el AEAD es inmutable tras construirse).
type Box struct {
	aead cipher.AEAD
}

// New construye un Box a partir de la clave en cualquiera de los encodings soportados.
func New(key string) (*Box, error) {
	k, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 2*requiredKeyLength {
		if h, err := hex.DecodeString(key); err == nil {
			return h, nil
		}
	}
	if len(key) == requiredKeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("secretbox: invalid key, requires %d bytes", requiredKeyLength)
}

// Seal cifra plain y devuelve el valor con prefijo {cipher}.
func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return CipherPrefix + base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open devuelve el texto plano de un secreto almacenado. Valores sin prefijo
// se devuelven tal cual. Un Box nil sólo puede abrir valores planos.
func (b *Box) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if b == nil {
		return "", ErrNoMasterKey
	}
	parts := strings.Split(strings.TrimPrefix(stored, CipherPrefix), sep)
	if len(parts) != 2 {
		return "", ErrFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("secretbox: nonce must be %d bytes, got %d", nonceSizeGCM, len(nonce))
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// IsSealed reporta si el valor lleva el prefijo {cipher}.
func IsSealed(v string) bool { return strings.HasPrefix(v, CipherPrefix) }
