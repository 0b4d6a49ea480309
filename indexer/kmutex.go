package indexer

import "sync"

// kmutex serializes work per key while letting unrelated keys proceed
// independently. Entries are reference counted and removed when the last
// holder releases, so the map does not grow with the entity space.
type kmutex struct {
	mu    sync.Mutex
	locks map[string]*kentry
}

type kentry struct {
	mu   sync.Mutex
	refs int
}

func newKmutex() *kmutex {
	return &kmutex{locks: make(map[string]*kentry)}
}

func (k *kmutex) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &kentry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *kmutex) Unlock(key string) {
	k.mu.Lock()
	entry := k.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
