package wasmhost

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// maxCacheEntriesBeforeEviction bounds a CachingRunner's result cache;
// past this size, expired entries are swept on the next insert rather
// than growing unbounded between sweeps.
const maxCacheEntriesBeforeEviction = 256

type cachedResult struct {
	value     any
	expiresAt time.Time
}

// executor is the subset of *Runner that CachingRunner depends on; tests
// substitute a fake to exercise cache behavior without a real component.
type executor interface {
	Execute(ctx context.Context, paramsJSON string) (Result, error)
}

// CachingRunner wraps a Runner with a TTL-keyed result cache so repeated
// calls with identical parameters skip re-instantiating the component.
// A zero TTL disables caching entirely.
type CachingRunner struct {
	inner    executor
	toolName string
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedResult
}

// NewCachingRunner wraps inner with a TTL cache.
func NewCachingRunner(inner *Runner, ttl time.Duration) *CachingRunner {
	return newCachingRunner(inner, inner.Metadata().Name, ttl)
}

func newCachingRunner(inner executor, toolName string, ttl time.Duration) *CachingRunner {
	return &CachingRunner{inner: inner, toolName: toolName, ttl: ttl, cache: make(map[string]cachedResult)}
}

// Execute serves a cached value when the exact same JSON parameters were
// seen within the TTL window, otherwise runs the component and caches its
// successful decoded result.
func (c *CachingRunner) Execute(ctx context.Context, paramsJSON string) (any, error) {
	key := canonicalizeParams(paramsJSON)

	if v, ok := c.get(key); ok {
		return v, nil
	}

	result, err := c.inner.Execute(ctx, paramsJSON)
	if err != nil {
		return nil, err
	}
	value, err := Decode(c.toolName, result)
	if err != nil {
		return nil, err
	}

	c.set(key, value)
	return value, nil
}

func (c *CachingRunner) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *CachingRunner) set(key string, value any) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) > maxCacheEntriesBeforeEviction {
		now := time.Now()
		for k, v := range c.cache {
			if now.After(v.expiresAt) {
				delete(c.cache, k)
			}
		}
	}
	c.cache[key] = cachedResult{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// canonicalizeParams re-marshals paramsJSON so key-order differences in
// equivalent parameter objects collapse onto the same cache key.
func canonicalizeParams(paramsJSON string) string {
	var v any
	if err := json.Unmarshal([]byte(paramsJSON), &v); err != nil {
		return paramsJSON
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return paramsJSON
	}
	return string(canon)
}
