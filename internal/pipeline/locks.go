package pipeline

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// deviceLocks hands out one mutex per device id. Entries are removed once
// nobody holds or waits on them.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[int64]*lockEntry)}
}

// Lock blocks until the device is free and returns the matching unlock.
func (l *deviceLocks) Lock(deviceID int64) func() {
	l.mu.Lock()
	e, ok := l.locks[deviceID]
	if !ok {
		e = &lockEntry{}
		l.locks[deviceID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, deviceID)
		}
		l.mu.Unlock()
	}
}

func (l *deviceLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
