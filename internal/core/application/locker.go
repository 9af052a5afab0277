package application

import "sync"

// keyedLocker serializes work on the same key while letting unrelated keys
// proceed concurrently. Orders are locked by id, deposit claims by txid.
type keyedLocker[K comparable] struct {
	lock  sync.Mutex
	locks map[K]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedLocker[K comparable]() *keyedLocker[K] {
	return &keyedLocker[K]{locks: make(map[K]*refLock)}
}

// Lock blocks until key is free and returns the func releasing it.
func (l *keyedLocker[K]) Lock(key K) func() {
	l.lock.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &refLock{}
		l.locks[key] = rl
	}
	rl.refs++
	l.lock.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()

		l.lock.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, key)
		}
		l.lock.Unlock()
	}
}

func (l *keyedLocker[K]) size() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.locks)
}
