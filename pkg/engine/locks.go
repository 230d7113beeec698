package engine

import "sync"

// keyedMutex serializes mutating operations per transaction. Every engine
// operation and the deadline monitor take the same per-transaction lock, so
// derived fields are never read-then-written concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()

	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}

	k.mu.Unlock()

	lock.Lock()

	return lock.Unlock
}
