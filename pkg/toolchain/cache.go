package toolchain

import (
	"sync"
)

// CacheGuard serializes invocations that share an artifact cache slice.
// The toolchain's on-disk cache is keyed by feature set and target
// triple; two concurrent writers with the same key corrupt it, while
// writers with different keys are independent.
type CacheGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCacheGuard creates an empty guard.
func NewCacheGuard() *CacheGuard {
	return &CacheGuard{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-key lock, creating it on first use. The returned
// function releases it.
func (g *CacheGuard) Lock(key string) func() {
	g.mu.Lock()
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	g.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
