package core

import "sync"

// roomLocks hands out one mutex per room so persist and fan-out of a room happen
// in a single sequence while different rooms proceed independently.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// Lock acquires the room's mutex and returns its release function.
func (l *roomLocks) Lock(room string) func() {
	l.mu.Lock()
	lk, ok := l.locks[room]
	if !ok {
		lk = &roomLock{}
		l.locks[room] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, room)
		}
		l.mu.Unlock()
	}
}
