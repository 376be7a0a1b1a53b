package integration

import (
	"sync"
)

// keyedMutex provides per-integration mutual exclusion. TryLock backs the
// fail-fast sync guard; Lock serializes short token updates.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

func (k *keyedMutex) entry(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}

	e.refs++

	return e
}

func (k *keyedMutex) release(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock blocks until the key is available and returns the unlock func.
func (k *keyedMutex) Lock(key string) func() {
	e := k.entry(key)
	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.release(key, e)
	}
}

// TryLock acquires the key without blocking. It returns the unlock func
// and true, or nil and false when the key is already held.
func (k *keyedMutex) TryLock(key string) (func(), bool) {
	e := k.entry(key)

	if !e.mu.TryLock() {
		k.release(key, e)

		return nil, false
	}

	return func() {
		e.mu.Unlock()
		k.release(key, e)
	}, true
}
