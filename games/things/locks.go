package things

import "sync"

// sessionLocks serializes work on a single session while letting different
// sessions proceed in parallel. Entries are created on first use and dropped
// as soon as nobody holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the caller holds the session's lock and returns the
// function that releases it.
func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()

	return func() {
		sl.mu.Unlock()

		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// active returns how many sessions currently have a lock entry.
func (l *sessionLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
