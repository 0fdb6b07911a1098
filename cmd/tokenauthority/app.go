package main

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/tokenauthority/internal/authreq"
	"github.com/dropDatabas3/tokenauthority/internal/cache"
	"github.com/dropDatabas3/tokenauthority/internal/config"
	"github.com/dropDatabas3/tokenauthority/internal/handlers"
	"github.com/dropDatabas3/tokenauthority/internal/jwt"
	"github.com/dropDatabas3/tokenauthority/internal/metrics"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/rate"
	"github.com/dropDatabas3/tokenauthority/internal/registry"
	"github.com/dropDatabas3/tokenauthority/internal/revocation"
	"github.com/dropDatabas3/tokenauthority/internal/security/secretbox"
	"github.com/dropDatabas3/tokenauthority/internal/services/authn"
	"github.com/dropDatabas3/tokenauthority/internal/services/authz"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	fsstore "github.com/dropDatabas3/tokenauthority/internal/store/fs"
	"github.com/dropDatabas3/tokenauthority/internal/store/pg"
	"github.com/prometheus/client_golang/prometheus"
)

// app es el grafo de componentes armado desde la config.
type app struct {
	cfg      *config.Config
	box      *secretbox.Box
	cache    cache.Client
	store    core.ClientRepository
	writer   core.ClientWriter
	registry *registry.Registry
	tokens   *jwt.Authority
	handlers *handlers.Registry
	gate     *revocation.Gate
	authz    authz.Service
	authn    authn.Service
	authreq  authreq.Service
	metrics  *metrics.Metrics

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	log := logger.From(ctx).With(logger.Component("bootstrap"))
	a := &app{cfg: cfg}

	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	a.metrics = m

	if cfg.Security.SecretBoxMasterKey != "" {
		box, err := secretbox.New(cfg.Security.SecretBoxMasterKey)
		if err != nil {
			return nil, fmt.Errorf("secretbox: %w", err)
		}
		a.box = box
	} else {
		log.Warn("no secretbox master key: sealed client secrets cannot be opened")
	}

	c, err := cache.New(ctx, cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.Cache.Memory.DefaultTTL,
	})
	if err != nil {
		return nil, err
	}
	a.cache = c
	a.closers = append(a.closers, func() { _ = c.Close() })
	log.Debug("cache ready", logger.Driver(cfg.Cache.Kind))

	switch cfg.Storage.Driver {
	case "pg":
		s, err := pg.New(ctx, cfg.Storage.DSN, pg.Tuning{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.store, a.writer = s, s
		a.closers = append(a.closers, s.Close)
	default:
		s, err := fsstore.Open(cfg.Storage.FS.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store, a.writer = s, s
	}
	log.Debug("client store ready", logger.Driver(cfg.Storage.Driver))

	a.registry = registry.New(registry.Deps{
		Store:       a.store,
		Cache:       a.cache,
		Metrics:     m,
		TTL:         cfg.RegistryTTL(),
		LoadTimeout: cfg.Registry.LoadTimeout,
	})
	a.tokens = jwt.NewAuthority(a.box)
	a.gate = revocation.New(a.cache, m)

	a.handlers = handlers.NewRegistry()
	if cfg.Users.File != "" {
		users, err := handlers.LoadUsers(cfg.Users.File)
		if err != nil {
			a.close()
			return nil, err
		}
		static, err := handlers.NewStaticAuthenticator(users)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := a.handlers.Register(handlers.DefaultTag, handlers.Handler{Authenticator: static}); err != nil {
			a.close()
			return nil, err
		}
	}

	if a.authz, err = authz.NewService(authz.Deps{
		Clients:    a.registry,
		Tokens:     a.tokens,
		Handlers:   a.handlers,
		Revocation: a.gate,
		Metrics:    m,
	}); err != nil {
		a.close()
		return nil, err
	}
	if a.authn, err = authn.NewService(authn.Deps{
		Clients:      a.registry,
		Tokens:       a.tokens,
		Handlers:     a.handlers,
		Checker:      a.authz,
		Metrics:      m,
		LoginLimiter: rate.NewLimiter(a.cache, "login:", cfg.LoginRate.MaxAttempts, cfg.LoginRate.Window),
	}); err != nil {
		a.close()
		return nil, err
	}
	a.authreq = authreq.New(authreq.Deps{
		Cache:   a.cache,
		Metrics: m,
		TTL:     cfg.AuthReq.TTL,
	})
	return a, nil
}

// ping verifica cache y, si lo soporta, el store de clientes.
func (a *app) ping(ctx context.Context) error {
	if err := a.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("client store: %w", err)
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
