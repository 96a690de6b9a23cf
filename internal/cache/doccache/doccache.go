// Package doccache keeps fetched WCS documents in a local LRU and, optionally, in Redis.
package doccache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/simple-wcs/internal/cache/keys"
	"github.com/mohammed-shakir/simple-wcs/internal/core/executor"
	"github.com/mohammed-shakir/simple-wcs/internal/core/observability"
)

const (
	tierLocal  = "lru"
	tierRemote = "redis"
)

// Remote is the shared tier; *redisstore.Client implements it.
type Remote interface {
	Get(ctx context.Context, key string) (val []byte, ttl time.Duration, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type entry struct {
	val     []byte
	expires time.Time
}

type Cache struct {
	local     *lru.Cache[string, entry]
	remote    Remote
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time // for tests
}

type Option func(*Cache)

func WithRemote(r Remote) Option { return func(c *Cache) { c.remote = r } }

func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithOpTimeout bounds each Redis call; 0 leaves the caller's context alone.
func WithOpTimeout(d time.Duration) Option { return func(c *Cache) { c.opTimeout = d } }

func New(size int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("lru: %w", err)
	}
	c := &Cache{local: l, ttl: ttl, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Get looks in the local tier, then Redis. Redis errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := c.local.Get(key); ok {
		if c.ttl <= 0 || c.now().Before(e.expires) {
			observability.IncCacheHit(tierLocal)
			return e.val, true
		}
		c.local.Remove(key)
	}
	observability.IncCacheMiss(tierLocal)

	if c.remote == nil {
		return nil, false
	}
	rctx, cancel := c.opContext(ctx)
	defer cancel()
	val, remaining, ok, err := c.remote.Get(rctx, key)
	if err != nil {
		c.logger.Warn("document cache get failed", "key", key, "err", err)
		observability.IncCacheMiss(tierRemote)
		return nil, false
	}
	if !ok {
		observability.IncCacheMiss(tierRemote)
		return nil, false
	}
	observability.IncCacheHit(tierRemote)
	// a promoted entry must not outlive its Redis copy
	life := c.ttl
	if remaining > 0 && remaining < life {
		life = remaining
	}
	c.local.Add(key, entry{val: val, expires: c.now().Add(life)})
	return val, true
}

func (c *Cache) Put(ctx context.Context, key string, val []byte) {
	c.local.Add(key, entry{val: val, expires: c.now().Add(c.ttl)})
	if c.remote == nil {
		return
	}
	rctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.remote.Set(rctx, key, val, c.ttl); err != nil {
		c.logger.Warn("document cache set failed", "key", key, "err", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.local.Remove(key)
	if c.remote == nil {
		return
	}
	rctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.remote.Del(rctx, key); err != nil {
		c.logger.Warn("document cache delete failed", "key", key, "err", err)
	}
}

func (c *Cache) Len() int { return c.local.Len() }

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// Fetcher serves document fetches from the cache and stores successful
// responses. Coverage downloads bypass the cache.
type Fetcher struct {
	next  executor.Fetcher
	cache *Cache
}

var _ executor.Fetcher = (*Fetcher)(nil)

func NewFetcher(next executor.Fetcher, cache *Cache) *Fetcher {
	return &Fetcher{next: next, cache: cache}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	key := keys.Document(executor.Operation(rawURL), rawURL)
	if b, ok := f.cache.Get(ctx, key); ok {
		return b, nil
	}
	b, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	f.cache.Put(ctx, key, b)
	return b, nil
}

func (f *Fetcher) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	return f.next.Download(ctx, rawURL, w)
}

// Cached returns the stored response for rawURL without going upstream.
func (f *Fetcher) Cached(ctx context.Context, rawURL string) ([]byte, bool) {
	return f.cache.Get(ctx, keys.Document(executor.Operation(rawURL), rawURL))
}

// Forget drops a cached document, e.g. after it failed to parse.
func (f *Fetcher) Forget(ctx context.Context, rawURL string) {
	f.cache.Invalidate(ctx, keys.Document(executor.Operation(rawURL), rawURL))
}
