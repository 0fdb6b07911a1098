// Package cache provee un cliente key/value con TTL y backends intercambiables.
//
// Soporta:
//   - memory (go-cache, in-process; desarrollo y nodo único)
//   - redis (distribuido; requerido cuando hay varias réplicas)
//
// Lo usan el registry de clientes (cache-aside), los authorization requests
// (one-shot) y la lista de revocación.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones de cache. Todas las escrituras son atómicas por key.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl == 0 significa sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Add guarda sólo si la key no existe. Reporta si se guardó.
	Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Take obtiene y elimina la key en una sola operación atómica.
	// Entre llamadas concurrentes sobre la misma key, sólo una obtiene el valor.
	Take(ctx context.Context, key string) (string, error)

	// Delete elimina la key y reporta si existía.
	Delete(ctx context.Context, key string) (bool, error)

	// Incr suma 1 al contador y devuelve el valor nuevo. El TTL se fija sólo
	// cuando la key se crea (ventana fija).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config para construir un Client.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // host:port (redis)
	Password   string
	DB         int
	Prefix     string        // prefijo para todas las keys
	DefaultTTL time.Duration // memory: TTL cuando Set recibe ttl < 0
}

// ErrNotFound indica key inexistente o expirada.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New crea un cliente según la configuración.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, errors.New("cache: unknown driver " + cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
