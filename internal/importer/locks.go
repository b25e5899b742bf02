package importer

import "sync"

// businessLocks hands out one mutex per business id and forgets it once unused.
type businessLocks struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newBusinessLocks() *businessLocks {
	return &businessLocks{locks: make(map[int64]*refMutex)}
}

// Lock blocks until the business is free and returns the matching unlock.
func (l *businessLocks) Lock(id int64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
