// Package authz valida tokens presentados por un cliente y resuelve al portador.
package authz

import (
	"context"
	"errors"
	"time"

	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/handlers"
	"github.com/dropDatabas3/tokenauthority/internal/jwt"
	"github.com/dropDatabas3/tokenauthority/internal/metrics"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/services"
)

// Service verifica tokens.
type Service interface {
	CheckToken(ctx context.Context, clientID, token string, expectAccess bool) (*services.AuthorizationResult, error)
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Clients    services.ClientSource
	Tokens     services.TokenAuthority
	Handlers   *handlers.Registry
	Revocation services.RevocationChecker
	Metrics    *metrics.Metrics
}

type service struct {
	deps Deps
}

// NewService crea el servicio de autorización. Clients, Tokens y Revocation
// son obligatorios; Handlers y Metrics no.
func NewService(d Deps) (Service, error) {
	switch {
	case d.Clients == nil:
		return nil, errors.New("authz: Clients is required")
	case d.Tokens == nil:
		return nil, errors.New("authz: Tokens is required")
	case d.Revocation == nil:
		return nil, errors.New("authz: Revocation is required")
	}
	return &service{deps: d}, nil
}

// CheckToken aplica los gates en orden: cliente, parse (validez y luego
// expiración), tipo de token, username, authorities, additional info,
// revocación. El primero que falla corta.
func (s *service) CheckToken(ctx context.Context, clientID, token string, expectAccess bool) (res *services.AuthorizationResult, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("authz"),
		logger.Op("CheckToken"),
		logger.ClientID(clientID),
		logger.TokenKind(!expectAccess),
	)
	start := time.Now()
	// la etiqueta usa el id resuelto, así ids inventados no abren series nuevas
	label := metrics.UnknownClient
	defer func() {
		result := "ok"
		if err != nil {
			result = string(apperr.KindOf(err))
			log.Debug("token rejected", logger.Err(err))
		}
		s.deps.Metrics.TokenChecked(label, expectAccess, result, time.Since(start))
	}()

	cfg, err := s.deps.Clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	label = cfg.ID

	payload, err := s.deps.Tokens.Parse(ctx, *cfg, token)
	if err != nil {
		return nil, err
	}

	if jwt.IsRefreshToken(payload) == expectAccess {
		if expectAccess {
			return nil, apperr.New(apperr.KindTokenInvalid, "expected an access token")
		}
		return nil, apperr.New(apperr.KindTokenInvalid, "expected a refresh token")
	}

	authorizer := s.authorizer(cfg.HandlerTag())
	claims := map[string]any(payload)

	username, ok := authorizer.ExtractUsername(claims)
	if !ok {
		return nil, apperr.New(apperr.KindUsernameNotFound, "token carries no username")
	}
	authorities := authorizer.ExtractAuthorities(claims)
	if authorities == nil {
		authorities = []string{}
	}
	additional := authorizer.ExtractAdditional(claims)
	if additional == nil {
		additional = map[string]any{}
	}

	revoked, err := s.deps.Revocation.Check(ctx, clientID, username)
	if err != nil {
		return nil, err
	}
	if revoked {
		log.Info("revoked principal presented token", logger.Username(username))
		return nil, apperr.New(apperr.KindUnauthorized, "principal revoked for this client")
	}

	return &services.AuthorizationResult{
		Application:           clientID,
		Username:              username,
		Authorities:           authorities,
		AdditionalInformation: additional,
	}, nil
}

func (s *service) authorizer(tag string) handlers.Authorizer {
	if s.deps.Handlers != nil {
		if h, ok := s.deps.Handlers.Resolve(tag); ok && h.Authorizer != nil {
			return h.Authorizer
		}
	}
	return handlers.ClaimsAuthorizer{}
}
