package jwt

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Claims reservados: los pone el authority y nunca los pisa el caller.
const (
	ClaimAudience     = "aud"
	ClaimJwtID        = "jti"
	ClaimRefreshJwtID = "refresh_jti"
	ClaimExpiresAt    = "exp"
	ClaimIssuedAt     = "iat"
)

var reserved = map[string]struct{}{
	ClaimAudience:     {},
	ClaimJwtID:        {},
	ClaimRefreshJwtID: {},
	ClaimExpiresAt:    {},
	ClaimIssuedAt:     {},
}

// buildClaims arma el claim set: primero los defaults, después el overlay del
// caller salteando las keys reservadas, y por último los tiempos.
func buildClaims(audience string, extra map[string]any, tokenID string, isRefresh bool, now time.Time, validity time.Duration) jwtv5.MapClaims {
	out := jwtv5.MapClaims{
		ClaimAudience: audience,
		ClaimJwtID:    tokenID,
	}
	if isRefresh {
		out[ClaimRefreshJwtID] = tokenID
	}
	for k, v := range extra {
		if _, ok := reserved[k]; ok {
			continue
		}
		out[k] = v
	}
	out[ClaimIssuedAt] = now.Unix()
	out[ClaimExpiresAt] = now.Add(validity).Unix()
	return out
}

// Payload son los claims de un token ya validado.
type Payload map[string]any

func (p Payload) str(k string) string {
	s, _ := p[k].(string)
	return s
}

func (p Payload) Audience() string     { return p.str(ClaimAudience) }
func (p Payload) JwtID() string        { return p.str(ClaimJwtID) }
func (p Payload) RefreshJwtID() string { return p.str(ClaimRefreshJwtID) }

// ExpiresAt devuelve el exp como time.Time (zero si falta).
func (p Payload) ExpiresAt() time.Time {
	d, err := jwtv5.MapClaims(p).GetExpirationTime()
	if err != nil || d == nil {
		return time.Time{}
	}
	return d.Time
}

// IsRefreshToken: la presencia de refresh_jti (no vacío) es el único discriminador.
func IsRefreshToken(p Payload) bool {
	return p.RefreshJwtID() != ""
}
