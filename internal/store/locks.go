package store

import "sync"

// idLocks hands out one RWMutex per entry id. Entries are dropped once no
// goroutine holds or waits for them.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sync.RWMutex
	refs int
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[string]*idLock)}
}

func (l *idLocks) acquire(id string) *idLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &idLock{}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *idLocks) release(id string, lk *idLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// lock takes the exclusive lock for id and returns its release func.
func (l *idLocks) lock(id string) func() {
	lk := l.acquire(id)
	lk.Lock()
	return func() {
		lk.Unlock()
		l.release(id, lk)
	}
}

// rlock takes the shared lock for id and returns its release func.
func (l *idLocks) rlock(id string) func() {
	lk := l.acquire(id)
	lk.RLock()
	return func() {
		lk.RUnlock()
		l.release(id, lk)
	}
}

// size reports how many ids currently have a lock entry.
func (l *idLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
