package cache

import "sync"

// keyLocks serializes chunked writes per base key. Lookups never touch it;
// only store and delete paths for chunked entries do, so the map stays small
// and uncontended.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// acquire blocks until the exclusive lock for baseKey is held.
func (k *keyLocks) acquire(baseKey string) {
	k.mu.Lock()
	l, ok := k.locks[baseKey]
	if !ok {
		l = &keyLock{}
		k.locks[baseKey] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// release frees the lock for baseKey and drops the map entry once no other
// goroutine is waiting on it.
func (k *keyLocks) release(baseKey string) {
	k.mu.Lock()
	l, ok := k.locks[baseKey]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(k.locks, baseKey)
		}
	}
	k.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
