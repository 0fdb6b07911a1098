// Package jwt emite y valida los tokens de cada cliente: JWS HMAC firmado con
// el secreto del cliente y, si el cliente lo pide, anidado dentro de un JWE.
//
// Cada cliente fija sus propios algoritmos; un token de otro cliente (o con
// otra forma) nunca valida.
package jwt

import (
	"context"
	"strings"
	"time"

	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"go.uber.org/zap"
)

// SecretOpener abre secretos guardados (posiblemente sellados con secretbox).
// *secretbox.Box lo implementa; un Box nil deja pasar los valores en claro.
type SecretOpener interface {
	Open(stored string) (string, error)
}

type plainSecrets struct{}

func (plainSecrets) Open(s string) (string, error) { return s, nil }

// Authority es stateless salvo por el reloj y el opener de secretos.
type Authority struct {
	secrets SecretOpener
	now     func() time.Time
}

type Option func(*Authority)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

func NewAuthority(secrets SecretOpener, opts ...Option) *Authority {
	if secrets == nil {
		secrets = plainSecrets{}
	}
	a := &Authority{secrets: secrets, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Issue arma y firma (y eventualmente cifra) un token para el cliente.
func (a *Authority) Issue(ctx context.Context, cfg core.ClientConfig, claims map[string]any, tokenID string, validitySeconds int64, isRefresh bool) (string, error) {
	log := logger.From(ctx).With(
		logger.Layer("jwt"), logger.Op("Issue"),
		logger.ClientID(cfg.ID), logger.TokenKind(isRefresh),
	)
	if validitySeconds < 0 {
		validitySeconds = 0
	}
	mc := buildClaims(cfg.ID, claims, tokenID, isRefresh, a.now(), time.Duration(validitySeconds)*time.Second)

	sigSecret, err := a.secrets.Open(cfg.SignatureSecret)
	if err != nil {
		log.Error("open signature secret", logger.Err(err))
		return "", apperr.Wrap(err, apperr.KindTokenProcessing, "signature secret unavailable")
	}
	signed, err := signJWS(cfg.SignatureAlgorithm, []byte(sigSecret), mc)
	if err != nil {
		log.Error("sign", logger.Err(err))
		return "", apperr.Wrap(err, apperr.KindTokenProcessing, "sign token")
	}
	if !cfg.UseEncryption {
		return signed, nil
	}

	encSecret, err := a.secrets.Open(cfg.EncryptionSecret)
	if err != nil {
		log.Error("open encryption secret", logger.Err(err))
		return "", apperr.Wrap(err, apperr.KindTokenProcessing, "encryption secret unavailable")
	}
	out, err := encryptJWE(cfg.EncryptionAlgorithm, cfg.EncryptionMethod, encSecret, signed)
	if err != nil {
		log.Error("encrypt", logger.Err(err))
		return "", apperr.Wrap(err, apperr.KindTokenProcessing, "encrypt token")
	}
	return out, nil
}

// Parse valida el token contra la configuración del cliente y devuelve sus claims.
//
// Orden: forma (JWS vs JWE) -> descifrado -> firma/alg -> audiencia -> exp.
// TokenExpired sólo se devuelve con el token ya validado criptográficamente.
func (a *Authority) Parse(ctx context.Context, cfg core.ClientConfig, token string) (Payload, error) {
	log := logger.From(ctx).With(
		logger.Layer("jwt"), logger.Op("Parse"),
		logger.ClientID(cfg.ID), logger.TokenHint(token),
	)

	parts := strings.Count(token, ".") + 1
	if cfg.UseEncryption && parts != 5 {
		log.Debug("expected JWE", zap.Int("parts", parts))
		return nil, apperr.New(apperr.KindTokenInvalid, "malformed token")
	}
	if !cfg.UseEncryption && parts != 3 {
		log.Debug("expected JWS", zap.Int("parts", parts))
		return nil, apperr.New(apperr.KindTokenInvalid, "malformed token")
	}

	jws := token
	if cfg.UseEncryption {
		encSecret, err := a.secrets.Open(cfg.EncryptionSecret)
		if err != nil {
			log.Error("open encryption secret", logger.Err(err))
			return nil, apperr.Wrap(err, apperr.KindTokenProcessing, "encryption secret unavailable")
		}
		jws, err = decryptJWE(cfg.EncryptionAlgorithm, cfg.EncryptionMethod, encSecret, token)
		if err != nil {
			log.Debug("decrypt failed", logger.Err(err))
			return nil, apperr.Wrap(err, apperr.KindTokenInvalid, "cannot decrypt token")
		}
	}

	sigSecret, err := a.secrets.Open(cfg.SignatureSecret)
	if err != nil {
		log.Error("open signature secret", logger.Err(err))
		return nil, apperr.Wrap(err, apperr.KindTokenProcessing, "signature secret unavailable")
	}
	mc, err := verifyJWS(cfg.SignatureAlgorithm, []byte(sigSecret), jws)
	if err != nil {
		log.Debug("verify failed", logger.Err(err))
		return nil, apperr.Wrap(err, apperr.KindTokenInvalid, "invalid token signature")
	}

	payload := Payload(mc)
	if payload.Audience() != cfg.ID {
		log.Debug("audience mismatch", zap.String("aud", payload.Audience()))
		return nil, apperr.New(apperr.KindTokenInvalid, "token issued for another client")
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		log.Warn("token without usable exp", logger.Err(err))
		return nil, apperr.Wrap(err, apperr.KindTokenProcessing, "missing exp claim")
	}
	if !a.now().Before(exp.Time) {
		log.Debug("token expired", zap.Time("exp", exp.Time))
		return nil, apperr.New(apperr.KindTokenExpired, "token expired")
	}
	return payload, nil
}
