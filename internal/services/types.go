// Package services agrupa los coordinadores de autenticación y autorización
// y los tipos que devuelven.
package services

import (
	"context"

	"github.com/dropDatabas3/tokenauthority/internal/jwt"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
)

const TokenTypeBearer = "bearer"

// TokenBundle es el resultado de un login o refresh.
type TokenBundle struct {
	AccessToken    string         `json:"access_token"`
	RefreshToken   string         `json:"refresh_token"`
	TokenType      string         `json:"token_type"`
	ExpiresIn      int            `json:"expires_in"`
	JwtID          string         `json:"jti"`
	AdditionalInfo map[string]any `json:"additional_info"`
}

// AuthorizationResult es lo que sabemos del portador de un token válido.
// Authorities y AdditionalInformation nunca son nil.
type AuthorizationResult struct {
	Application           string         `json:"application"`
	Username              string         `json:"username"`
	Authorities           []string       `json:"authorities"`
	AdditionalInformation map[string]any `json:"additional_information"`
}

// ClientSource resuelve la config de un cliente (registry.Registry).
type ClientSource interface {
	Get(ctx context.Context, id string) (*core.ClientConfig, error)
}

// TokenAuthority emite y valida tokens (jwt.Authority).
type TokenAuthority interface {
	Issue(ctx context.Context, cfg core.ClientConfig, claims map[string]any, tokenID string, validitySeconds int64, isRefresh bool) (string, error)
	Parse(ctx context.Context, cfg core.ClientConfig, token string) (jwt.Payload, error)
}

// RevocationChecker consulta la lista de revocación (revocation.Gate).
type RevocationChecker interface {
	Check(ctx context.Context, clientID, principal string) (bool, error)
}
