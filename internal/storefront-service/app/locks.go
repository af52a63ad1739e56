package app

import "sync"

// orderLocks serializes sagas of the same order within this process.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*orderLock)}
}

func (k *orderLocks) Lock(orderID string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[orderID]
	if !ok {
		l = &orderLock{}
		k.locks[orderID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, orderID)
		}
		k.mu.Unlock()
	}
}
