package worker

import "sync"

// lineageLocks serializes sends that share a work item ID.
type lineageLocks struct {
	mu    sync.Mutex
	locks map[string]*lineageLock
}

type lineageLock struct {
	sync.Mutex
	refs int
}

func newLineageLocks() *lineageLocks {
	return &lineageLocks{locks: make(map[string]*lineageLock)}
}

// lock blocks until the lineage is free and returns its release func.
func (l *lineageLocks) lock(id string) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &lineageLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
