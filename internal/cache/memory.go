package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// go-cache es seguro por operación; mu serializa las operaciones
// compuestas (check-then-act) para que Take y Delete sean atómicas.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	mu     sync.Mutex
}

// NewMemory crea un cliente en memoria. defaultTTL se aplica cuando ttl < 0.
func NewMemory(prefix string, defaultTTL time.Duration) *memoryClient {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(defaultTTL, time.Minute),
	}
}

func (m *memoryClient) ttl(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return gocache.NoExpiration
	case d < 0:
		return gocache.DefaultExpiration
	default:
		return d
	}
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(prefixed(m.prefix, key), value, m.ttl(ttl))
	return nil
}

func (m *memoryClient) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// go-cache.Add falla si la key existe y no expiró
	if err := m.c.Add(prefixed(m.prefix, key), value, m.ttl(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) Take(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := prefixed(m.prefix, key)
	v, ok := m.c.Get(k)
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(k)
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := prefixed(m.prefix, key)
	_, ok := m.c.Get(k)
	m.c.Delete(k)
	return ok, nil
}

func (m *memoryClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := prefixed(m.prefix, key)
	v, exp, ok := m.c.GetWithExpiration(k)
	if !ok {
		m.c.Set(k, "1", m.ttl(ttl))
		return 1, nil
	}
	s, _ := v.(string)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	left := gocache.NoExpiration
	if !exp.IsZero() {
		if left = time.Until(exp); left <= 0 {
			left = time.Millisecond
		}
	}
	m.c.Set(k, strconv.FormatInt(n, 10), left)
	return n, nil
}

func (m *memoryClient) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.c.Get(prefixed(m.prefix, key))
	return ok, nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
