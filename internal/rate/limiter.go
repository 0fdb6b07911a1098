// Package rate limita intentos por key con ventana fija (INCR + TTL) sobre el
// cache.Client, así el conteo se comparte entre réplicas cuando el backend es redis.
package rate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/cache"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter: fixed window sencillo.
type Limiter struct {
	cache  cache.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewLimiter crea un limiter de max hits por ventana. max <= 0 deshabilita el límite.
func NewLimiter(c cache.Client, prefix string, max int, window time.Duration) *Limiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Limiter{cache: c, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

// Allow registra un hit para key y reporta si está dentro del límite.
// Un *Limiter nil siempre permite.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	if l == nil || l.max <= 0 || l.window <= 0 {
		return Result{Allowed: true}, nil
	}
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	k := l.prefix + strings.ReplaceAll(key, " ", "_") + ":" + strconv.FormatInt(winStart.Unix(), 10)

	hits, err := l.cache.Incr(ctx, k, l.window)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Allowed:     hits <= l.max,
		CurrentHits: hits,
		Remaining:   l.max - hits,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		// resto de la ventana
		res.RetryAfter = winStart.Add(l.window).Sub(now)
	}
	return res, nil
}
