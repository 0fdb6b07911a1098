package jwt

import (
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// signJWS firma claims con HMAC (HS256/384/512).
func signJWS(alg string, secret []byte, claims jwtv5.MapClaims) (string, error) {
	method := jwtv5.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("unsupported signature algorithm %q", alg)
	}
	tk := jwtv5.NewWithClaims(method, claims)
	tk.Header["typ"] = "JWT"
	return tk.SignedString(secret)
}

// verifyJWS valida estructura, algoritmo (sólo alg) y firma. No valida claims:
// la expiración se chequea después, fuera de acá.
func verifyJWS(alg string, secret []byte, token string) (jwtv5.MapClaims, error) {
	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{alg}),
		jwtv5.WithoutClaimsValidation(),
	)
	tok, err := parser.Parse(token, func(*jwtv5.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, jwtv5.ErrTokenSignatureInvalid
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, jwtv5.ErrTokenInvalidClaims
	}
	return claims, nil
}
