// Package optimistic applies a change to cached state before the durable
// write, and rolls the cache back if that write fails.
package optimistic

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache is the keyed state being updated. Values are treated as immutable:
// a mutation returns a new value and never edits the one it was given.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, v V)
	Delete(key string)
}

// Updater serializes Apply calls per key so a revert never clobbers a
// newer successful update.
type Updater[V any] struct {
	cache Cache[V]
	locks sync.Map
}

func NewUpdater[V any](c Cache[V]) *Updater[V] {
	return &Updater[V]{cache: c}
}

// Apply sets key to mutate(current), then runs commit. When commit fails
// the previous value (or its absence) is restored and the commit error is
// returned. If nothing is cached under key, mutate is skipped.
func (u *Updater[V]) Apply(key string, mutate func(V) V, commit func() error) error {
	mu := u.lock(key)
	mu.Lock()
	defer mu.Unlock()

	prev, had := u.cache.Get(key)
	if had {
		u.cache.Set(key, mutate(prev))
	}

	if err := commit(); err != nil {
		if had {
			u.cache.Set(key, prev)
		} else {
			u.cache.Delete(key)
		}
		return err
	}
	return nil
}

// Update replaces key with fn(current) under the same per-key lock as
// Apply. A missing key starts from fallback. When fn fails the cache is
// left as it was.
func (u *Updater[V]) Update(key string, fallback V, fn func(V) (V, error)) (V, error) {
	mu := u.lock(key)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := u.cache.Get(key)
	if !ok {
		cur = fallback
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	u.cache.Set(key, next)
	return next, nil
}

func (u *Updater[V]) lock(key string) *sync.Mutex {
	mu, _ := u.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GoCache adapts a go-cache instance holding values of type V.
type GoCache[V any] struct {
	c   *cache.Cache
	ttl time.Duration
}

func NewGoCache[V any](c *cache.Cache, ttl time.Duration) *GoCache[V] {
	return &GoCache[V]{c: c, ttl: ttl}
}

func (g *GoCache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := g.c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (g *GoCache[V]) Set(key string, v V) {
	g.c.Set(key, v, g.ttl)
}

func (g *GoCache[V]) Delete(key string) {
	g.c.Delete(key)
}
