// Package authn emite pares access/refresh: login con credenciales y refresh
// con rotación.
package authn

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/audit"
	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/handlers"
	"github.com/dropDatabas3/tokenauthority/internal/metrics"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/rate"
	"github.com/dropDatabas3/tokenauthority/internal/services"
	"github.com/dropDatabas3/tokenauthority/internal/services/authz"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service emite tokens.
type Service interface {
	Login(ctx context.Context, clientID, username, password string) (*services.TokenBundle, error)
	Refresh(ctx context.Context, clientID, refreshToken string) (*services.TokenBundle, error)
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Clients  services.ClientSource
	Tokens   services.TokenAuthority
	Handlers *handlers.Registry
	// Checker valida el refresh token (incluye el gate de revocación).
	Checker authz.Service
	Metrics *metrics.Metrics
	// LoginLimiter acota intentos de login por (cliente, usuario). nil = sin límite.
	LoginLimiter *rate.Limiter
	// NewTokenID genera el id compartido del par. Default: UUID v4.
	NewTokenID func() string
}

type service struct {
	deps Deps
}

// NewService crea el servicio de autenticación. Clients, Tokens, Handlers y
// Checker son obligatorios.
func NewService(d Deps) (Service, error) {
	switch {
	case d.Clients == nil:
		return nil, errors.New("authn: Clients is required")
	case d.Tokens == nil:
		return nil, errors.New("authn: Tokens is required")
	case d.Handlers == nil:
		return nil, errors.New("authn: Handlers is required")
	case d.Checker == nil:
		return nil, errors.New("authn: Checker is required")
	}
	if d.NewTokenID == nil {
		d.NewTokenID = uuid.NewString
	}
	return &service{deps: d}, nil
}

func (s *service) Login(ctx context.Context, clientID, username, password string) (*services.TokenBundle, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("authn"),
		logger.Op("Login"),
		logger.ClientID(clientID),
		logger.Username(username),
	)

	cfg, err := s.deps.Clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	auth, err := s.authenticator(cfg)
	if err != nil {
		log.Error("no authenticator", logger.Err(err))
		return nil, err
	}

	rl, err := s.deps.LoginLimiter.Allow(ctx, clientID+"|"+username)
	if err != nil {
		// sin contador no bloqueamos el login
		log.Warn("login limiter unavailable", logger.Err(err))
	} else if !rl.Allowed {
		log.Warn("login rate limited", zap.Duration("retry_after", rl.RetryAfter))
		return nil, apperr.Newf(apperr.KindRateLimited, "too many login attempts, retry in %s", rl.RetryAfter.Round(time.Second))
	}

	p, err := auth.Authenticate(ctx, username, password)
	if err != nil {
		log.Info("login rejected", logger.Err(err))
		audit.Log(ctx, audit.EventLoginFailed, logger.ClientID(clientID), logger.Username(username),
			zap.String("reason", string(apperr.KindOf(err))))
		return nil, typed(err, "authenticate")
	}

	bundle, err := s.mint(ctx, cfg, auth, p)
	if err != nil {
		log.Error("token issuance failed", logger.Err(err))
		return nil, err
	}
	audit.Log(ctx, audit.EventLogin, logger.ClientID(clientID), logger.Username(username), logger.TokenID(bundle.JwtID))
	return bundle, nil
}

// Refresh valida el refresh token, recarga al principal (un usuario
// deshabilitado o borrado no puede refrescar) y emite un par nuevo bajo un
// token id nuevo.
func (s *service) Refresh(ctx context.Context, clientID, refreshToken string) (*services.TokenBundle, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("authn"),
		logger.Op("Refresh"),
		logger.ClientID(clientID),
	)

	res, err := s.deps.Checker.CheckToken(ctx, clientID, refreshToken, false)
	if err != nil {
		log.Debug("refresh token rejected", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.Username(res.Username))

	cfg, err := s.deps.Clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	auth, err := s.authenticator(cfg)
	if err != nil {
		log.Error("no authenticator", logger.Err(err))
		return nil, err
	}
	p, err := auth.LoadPrincipal(ctx, res.Username)
	if err != nil {
		log.Info("principal reload rejected", logger.Err(err))
		return nil, typed(err, "load principal")
	}

	bundle, err := s.mint(ctx, cfg, auth, p)
	if err != nil {
		log.Error("token issuance failed", logger.Err(err))
		return nil, err
	}
	audit.Log(ctx, audit.EventRefresh, logger.ClientID(clientID), logger.Username(res.Username), logger.TokenID(bundle.JwtID))
	return bundle, nil
}

// mint emite access y refresh bajo el mismo token id.
func (s *service) mint(ctx context.Context, cfg *core.ClientConfig, auth handlers.Authenticator, p handlers.Principal) (*services.TokenBundle, error) {
	raw, err := auth.RawClaims(ctx, p)
	if err != nil {
		return nil, typed(err, "raw claims")
	}

	tokenID := s.deps.NewTokenID()
	access, err := s.deps.Tokens.Issue(ctx, *cfg, raw.Access, tokenID, int64(cfg.AccessTokenValiditySeconds), false)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.TokenIssued(cfg.ID, false)

	refresh, err := s.deps.Tokens.Issue(ctx, *cfg, raw.Refresh, tokenID, int64(cfg.RefreshTokenValiditySeconds), true)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.TokenIssued(cfg.ID, true)

	info := raw.AdditionalInfo
	if info == nil {
		info = map[string]any{}
	}
	return &services.TokenBundle{
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenType:      services.TokenTypeBearer,
		ExpiresIn:      cfg.AccessTokenValiditySeconds,
		JwtID:          tokenID,
		AdditionalInfo: info,
	}, nil
}

func (s *service) authenticator(cfg *core.ClientConfig) (handlers.Authenticator, error) {
	if h, ok := s.deps.Handlers.Resolve(cfg.HandlerTag()); ok {
		return h.Authenticator, nil
	}
	return nil, apperr.Newf(apperr.KindInternal, "no authenticator registered for %q", cfg.HandlerTag())
}

// typed deja pasar errores tipados del authenticator; el resto es una falla
// de infraestructura.
func typed(err error, msg string) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Wrap(err, apperr.KindInternal, msg)
}
