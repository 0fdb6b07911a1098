package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/cache"
	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu      sync.Mutex
	clients map[string]core.ClientConfig
	loads   int32
	err     error
	delay   time.Duration
}

func (s *countingStore) Load(ctx context.Context, id string) (*core.ClientConfig, error) {
	atomic.AddInt32(&s.loads, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

func (s *countingStore) set(c core.ClientConfig) {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
}

func acme() core.ClientConfig {
	return core.ClientConfig{
		ID: "acme", SignatureAlgorithm: "HS256", SignatureSecret: "{cipher}n|c",
		AccessTokenValiditySeconds: 300, RefreshTokenValiditySeconds: 3600,
	}
}

func newRegistry(s *countingStore) (*Registry, cache.Client) {
	c := cache.NewMemory("", 0)
	return New(Deps{Store: s, Cache: c}), c
}

func TestGet_MissThenHit(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}}
	r, _ := newRegistry(s)
	ctx := context.Background()

	got, err := r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
	assert.Equal(t, "{cipher}n|c", got.SignatureSecret, "secret stays sealed")

	_, err = r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&s.loads))
}

func TestGet_NotFoundIsNotCached(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{}}
	r, _ := newRegistry(s)
	ctx := context.Background()

	_, err := r.Get(ctx, "acme")
	assert.True(t, apperr.Is(err, apperr.KindClientNotFound))

	s.set(acme())
	got, err := r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&s.loads))
}

func TestGet_StoreErrorIsInternal(t *testing.T) {
	s := &countingStore{err: errors.New("db down")}
	r, _ := newRegistry(s)

	_, err := r.Get(context.Background(), "acme")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestGet_EmptyID(t *testing.T) {
	r, _ := newRegistry(&countingStore{})
	_, err := r.Get(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.KindClientNotFound))
}

func TestGet_ConcurrentMissesConsistent(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}, delay: 20 * time.Millisecond}
	r, _ := newRegistry(s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Get(context.Background(), "acme")
			assert.NoError(t, err)
			assert.Equal(t, 300, got.AccessTokenValiditySeconds)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&s.loads), int32(20))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&s.loads), int32(1))
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}}
	r, _ := newRegistry(s)

	a, err := r.Get(context.Background(), "acme")
	require.NoError(t, err)
	a.AccessTokenValiditySeconds = 1

	b, err := r.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 300, b.AccessTokenValiditySeconds)
}

func TestPutAndEvict(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}}
	r, _ := newRegistry(s)
	ctx := context.Background()

	updated := acme()
	updated.AccessTokenValiditySeconds = 60
	require.NoError(t, r.Put(ctx, &updated))

	got, err := r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 60, got.AccessTokenValiditySeconds)
	assert.Equal(t, int32(0), atomic.LoadInt32(&s.loads))

	require.NoError(t, r.Evict(ctx, "acme"))
	got, err = r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 300, got.AccessTokenValiditySeconds)
	assert.Equal(t, int32(1), atomic.LoadInt32(&s.loads))
}

func TestPut_RejectsInvalid(t *testing.T) {
	r, _ := newRegistry(&countingStore{})
	err := r.Put(context.Background(), &core.ClientConfig{ID: "x"})
	assert.True(t, apperr.Is(err, apperr.KindIllegalArgument))
}

func TestGet_CorruptEntryReloads(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}}
	r, c := newRegistry(s)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, keyPrefix+"acme", "{not json", 0))

	got, err := r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&s.loads))
}

func TestGet_LoadTimeout(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}, delay: time.Second}
	r := New(Deps{Store: s, Cache: cache.NewMemory("", 0), LoadTimeout: 10 * time.Millisecond})

	_, err := r.Get(context.Background(), "acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	s := &countingStore{clients: map[string]core.ClientConfig{"acme": acme()}, delay: 200 * time.Millisecond}
	r, _ := newRegistry(s)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.Get(leaderCtx, "acme")
		leaderErr <- err
	}()
	// el follower se suma a la carga en curso
	require.Eventually(t, func() bool { return atomic.LoadInt32(&s.loads) == 1 }, time.Second, time.Millisecond)

	type result struct {
		cfg *core.ClientConfig
		err error
	}
	follower := make(chan result, 1)
	go func() {
		cfg, err := r.Get(context.Background(), "acme")
		follower <- result{cfg, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-leaderErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, "acme", res.cfg.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&s.loads))
}
