package core

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Algoritmos de firma soportados (HMAC, secreto simétrico por cliente).
var SignatureAlgorithms = []string{"HS256", "HS384", "HS512"}

// Algoritmos de cifrado de clave (JWE "alg") soportados con secreto simétrico.
var EncryptionAlgorithms = []string{
	"dir",
	"A128KW", "A192KW", "A256KW",
	"A128GCMKW", "A192GCMKW", "A256GCMKW",
	"PBES2-HS256+A128KW", "PBES2-HS384+A192KW", "PBES2-HS512+A256KW",
}

// Métodos de cifrado de contenido (JWE "enc") soportados.
var EncryptionMethods = []string{
	"A128GCM", "A192GCM", "A256GCM",
	"A128CBC-HS256", "A192CBC-HS384", "A256CBC-HS512",
}

// ClientConfig es la política criptográfica de una aplicación registrada.
// Los secretos se guardan tal cual vienen del store ("{cipher}..." o plano) y
// sólo se abren dentro del token authority.
type ClientConfig struct {
	ID                          string `json:"id" yaml:"id"`
	Handler                     string `json:"handler,omitempty" yaml:"handler"`
	UseEncryption               bool   `json:"use_encryption" yaml:"use_encryption"`
	SignatureAlgorithm          string `json:"signature_algorithm" yaml:"signature_algorithm"`
	SignatureSecret             string `json:"signature_secret" yaml:"signature_secret"`
	EncryptionAlgorithm         string `json:"encryption_algorithm,omitempty" yaml:"encryption_algorithm"`
	EncryptionMethod            string `json:"encryption_method,omitempty" yaml:"encryption_method"`
	EncryptionSecret            string `json:"encryption_secret,omitempty" yaml:"encryption_secret"`
	AccessTokenValiditySeconds  int    `json:"access_token_validity_seconds" yaml:"access_token_validity_seconds"`
	RefreshTokenValiditySeconds int    `json:"refresh_token_validity_seconds" yaml:"refresh_token_validity_seconds"`
}

// HandlerTag devuelve la key del registry de handlers (Handler o, por defecto, el ID).
func (c *ClientConfig) HandlerTag() string {
	if c.Handler != "" {
		return c.Handler
	}
	return c.ID
}

// Validate verifica los invariantes de la config.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: client id required", ErrInvalid)
	}
	if !contains(SignatureAlgorithms, c.SignatureAlgorithm) {
		return fmt.Errorf("%w: client %s: unsupported signature algorithm %q", ErrInvalid, c.ID, c.SignatureAlgorithm)
	}
	if c.SignatureSecret == "" {
		return fmt.Errorf("%w: client %s: signature secret required", ErrInvalid, c.ID)
	}
	if c.AccessTokenValiditySeconds <= 0 || c.RefreshTokenValiditySeconds <= 0 {
		return fmt.Errorf("%w: client %s: token validity must be positive", ErrInvalid, c.ID)
	}
	if c.UseEncryption {
		if !contains(EncryptionAlgorithms, c.EncryptionAlgorithm) {
			return fmt.Errorf("%w: client %s: unsupported encryption algorithm %q", ErrInvalid, c.ID, c.EncryptionAlgorithm)
		}
		if !contains(EncryptionMethods, c.EncryptionMethod) {
			return fmt.Errorf("%w: client %s: unsupported encryption method %q", ErrInvalid, c.ID, c.EncryptionMethod)
		}
		if c.EncryptionSecret == "" {
			return fmt.Errorf("%w: client %s: encryption secret required", ErrInvalid, c.ID)
		}
	}
	return nil
}

// String omite los secretos.
func (c ClientConfig) String() string {
	if c.UseEncryption {
		return fmt.Sprintf("ClientConfig{id=%s sig=%s enc=%s/%s access=%ds refresh=%ds}",
			c.ID, c.SignatureAlgorithm, c.EncryptionAlgorithm, c.EncryptionMethod,
			c.AccessTokenValiditySeconds, c.RefreshTokenValiditySeconds)
	}
	return fmt.Sprintf("ClientConfig{id=%s sig=%s access=%ds refresh=%ds}",
		c.ID, c.SignatureAlgorithm, c.AccessTokenValiditySeconds, c.RefreshTokenValiditySeconds)
}

// MarshalLogObject implementa zapcore.ObjectMarshaler sin los secretos.
func (c ClientConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", c.ID)
	if c.Handler != "" {
		enc.AddString("handler", c.Handler)
	}
	enc.AddString("signature_algorithm", c.SignatureAlgorithm)
	enc.AddBool("use_encryption", c.UseEncryption)
	if c.UseEncryption {
		enc.AddString("encryption_algorithm", c.EncryptionAlgorithm)
		enc.AddString("encryption_method", c.EncryptionMethod)
	}
	enc.AddInt("access_token_validity_seconds", c.AccessTokenValiditySeconds)
	enc.AddInt("refresh_token_validity_seconds", c.RefreshTokenValiditySeconds)
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
