package booking

import (
	"slices"
	"sync"
)

// slotLocks serialises check-then-write sequences per room-day inside one
// process. Keys are acquired in sorted order so multi-key holders cannot
// deadlock each other.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*slotLock)}
}

// lock acquires every key and returns the function that releases them.
func (l *slotLocks) lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*slotLock, 0, len(keys))
	for _, k := range keys {
		sl := l.acquire(k)
		sl.mu.Lock()
		held = append(held, sl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
	}
}

func (l *slotLocks) acquire(key string) *slotLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &slotLock{}
		l.locks[key] = sl
	}
	sl.refs++
	return sl
}

func (l *slotLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl := l.locks[key]
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, key)
	}
}
