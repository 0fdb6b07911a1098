package jwt

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/hkdf"
)

// Iteraciones PBES2: balance entre costo de brute force y latencia por token.
const pbes2Count = 10000

// contentKeyLen: bytes de CEK por "enc" (para "dir").
var contentKeyLen = map[string]int{
	"A128GCM":       16,
	"A192GCM":       24,
	"A256GCM":       32,
	"A128CBC-HS256": 32,
	"A192CBC-HS384": 48,
	"A256CBC-HS512": 64,
}

// wrapKeyLen: bytes de KEK por "alg" (AES key wrap).
var wrapKeyLen = map[string]int{
	"A128KW": 16, "A128GCMKW": 16,
	"A192KW": 24, "A192GCMKW": 24,
	"A256KW": 32, "A256GCMKW": 32,
}

// encryptionKey adapta el secreto del cliente al tipo de clave que pide el
// algoritmo: PBES2 usa el secreto como password; dir y AES-KW derivan una clave
// del largo exacto con HKDF-SHA256 (info = alg/enc).
func encryptionKey(alg, enc, secret string) ([]byte, error) {
	if strings.HasPrefix(alg, "PBES2-") {
		return []byte(secret), nil
	}
	var n int
	if alg == string(jose.DIRECT) {
		n = contentKeyLen[enc]
	} else {
		n = wrapKeyLen[alg]
	}
	if n == 0 {
		return nil, fmt.Errorf("unsupported encryption %s/%s", alg, enc)
	}
	key := make([]byte, n)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("jwe:"+alg+":"+enc))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// encryptJWE envuelve el JWS firmado en un JWE compacto (cty=JWT).
func encryptJWE(alg, enc, secret string, signed string) (string, error) {
	key, err := encryptionKey(alg, enc, secret)
	if err != nil {
		return "", err
	}
	rcpt := jose.Recipient{Algorithm: jose.KeyAlgorithm(alg), Key: key}
	if strings.HasPrefix(alg, "PBES2-") {
		rcpt.PBES2Count = pbes2Count
	}
	opts := (&jose.EncrypterOptions{}).WithContentType("JWT").WithType("JWT")
	encrypter, err := jose.NewEncrypter(jose.ContentEncryption(enc), rcpt, opts)
	if err != nil {
		return "", err
	}
	obj, err := encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// decryptJWE acepta sólo el alg/enc configurados para el cliente.
func decryptJWE(alg, enc, secret string, token string) (string, error) {
	obj, err := jose.ParseEncryptedCompact(token,
		[]jose.KeyAlgorithm{jose.KeyAlgorithm(alg)},
		[]jose.ContentEncryption{jose.ContentEncryption(enc)},
	)
	if err != nil {
		return "", err
	}
	if obj.Header.Algorithm != alg {
		return "", fmt.Errorf("unexpected key algorithm %q", obj.Header.Algorithm)
	}
	key, err := encryptionKey(alg, enc, secret)
	if err != nil {
		return "", err
	}
	pt, err := obj.Decrypt(key)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
