// Package registry implementa el cache-aside de ClientConfig por client id.
//
// La fuente de verdad es un core.ClientRepository externo. Un miss carga del
// store, guarda el valor completo (JSON, secretos en su forma sellada) y lo
// devuelve. NotFound nunca se cachea.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/cache"
	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/metrics"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "client:"

// Deps contiene las dependencias del registry.
type Deps struct {
	Store   core.ClientRepository
	Cache   cache.Client
	Metrics *metrics.Metrics
	// TTL de las entradas cacheadas. 0 = sin expiración (invalidación explícita).
	TTL time.Duration
	// LoadTimeout acota la carga desde el store en un miss. 0 = sin límite propio;
	// cada caller igual deja de esperar cuando se cancela su ctx.
	LoadTimeout time.Duration
}

type Registry struct {
	deps  Deps
	group singleflight.Group
}

func New(d Deps) *Registry {
	return &Registry{deps: d}
}

// Get devuelve la config del cliente. Falla con KindClientNotFound si no existe.
func (r *Registry) Get(ctx context.Context, id string) (*core.ClientConfig, error) {
	if id == "" {
		return nil, apperr.New(apperr.KindClientNotFound, "client id required")
	}
	log := logger.From(ctx).With(logger.Component("registry"), logger.ClientID(id))

	if cfg, ok := r.lookup(ctx, id); ok {
		r.deps.Metrics.RegistryLookup("hit")
		return cfg, nil
	}

	// Misses concurrentes del mismo id comparten una sola carga. La carga no
	// hereda la cancelación de quien la disparó; cada caller espera con su ctx.
	ch := r.group.DoChan(id, func() (any, error) {
		return r.load(context.WithoutCancel(ctx), id)
	})
	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		r.deps.Metrics.RegistryLookup("error")
		return nil, apperr.Wrap(ctx.Err(), apperr.KindInternal, "client load abandoned")
	}
	if err != nil {
		if apperr.Is(err, apperr.KindClientNotFound) {
			r.deps.Metrics.RegistryLookup("not_found")
		} else {
			r.deps.Metrics.RegistryLookup("error")
			log.Error("client load failed", logger.Err(err))
		}
		return nil, err
	}
	r.deps.Metrics.RegistryLookup("miss")
	cfg := *v.(*core.ClientConfig)
	return &cfg, nil
}

// lookup lee del cache. Un valor corrupto se trata como miss y se descarta.
func (r *Registry) lookup(ctx context.Context, id string) (*core.ClientConfig, bool) {
	raw, err := r.deps.Cache.Get(ctx, keyPrefix+id)
	if err != nil {
		if !cache.IsNotFound(err) {
			logger.From(ctx).Warn("registry cache read failed", logger.ClientID(id), logger.Err(err))
		}
		return nil, false
	}
	var cfg core.ClientConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil || cfg.ID != id {
		logger.From(ctx).Warn("registry cache entry discarded", logger.ClientID(id))
		_, _ = r.deps.Cache.Delete(ctx, keyPrefix+id)
		return nil, false
	}
	return &cfg, true
}

func (r *Registry) load(ctx context.Context, id string) (*core.ClientConfig, error) {
	if r.deps.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deps.LoadTimeout)
		defer cancel()
	}
	cfg, err := r.deps.Store.Load(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperr.Wrap(err, apperr.KindClientNotFound, "client not found: "+id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "client store unavailable")
	}
	logger.From(ctx).Debug("client loaded", zap.Object("client", cfg))
	if err := r.store(ctx, cfg); err != nil {
		// El valor es válido aunque no se haya podido cachear.
		logger.From(ctx).Warn("registry cache write failed", logger.ClientID(id), logger.Err(err))
	}
	return cfg, nil
}

func (r *Registry) store(ctx context.Context, cfg *core.ClientConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.deps.Cache.Set(ctx, keyPrefix+cfg.ID, string(b), r.deps.TTL)
}

// Put reemplaza la entrada cacheada (flujo administrativo de update).
func (r *Registry) Put(ctx context.Context, cfg *core.ClientConfig) error {
	if cfg == nil {
		return apperr.New(apperr.KindIllegalArgument, "client config required")
	}
	if err := cfg.Validate(); err != nil {
		return apperr.Wrap(err, apperr.KindIllegalArgument, "invalid client config")
	}
	if err := r.store(ctx, cfg); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "registry cache write failed")
	}
	return nil
}

// Evict invalida la entrada; el próximo Get recarga del store.
func (r *Registry) Evict(ctx context.Context, id string) error {
	if _, err := r.deps.Cache.Delete(ctx, keyPrefix+id); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "registry cache evict failed")
	}
	return nil
}
