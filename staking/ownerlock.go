package staking

import (
	"sync"
	"time"
)

// ownerLock is one keyed mutex slot. refs counts holders plus waiters so the
// slot can be dropped from the table once nobody references it.
type ownerLock struct {
	ch   chan struct{}
	refs int
}

// lockTable hands out per-owner exclusive locks with a bounded wait. Unrelated
// owners never contend with each other.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[string]*ownerLock{}}
}

// acquire blocks until the owner's lock is held or wait elapses, in which case
// it returns ErrOwnerLockTimeout.
func (t *lockTable) acquire(owner string, wait time.Duration) error {
	t.mu.Lock()
	l, ok := t.locks[owner]
	if !ok {
		l = &ownerLock{ch: make(chan struct{}, 1)}
		t.locks[owner] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		t.unref(owner, l)
		return ErrOwnerLockTimeout
	}
}

// release drops the owner's lock. Must pair with a successful acquire.
func (t *lockTable) release(owner string) {
	t.mu.Lock()
	l, ok := t.locks[owner]
	t.mu.Unlock()
	if !ok {
		panic("release of unheld owner lock: " + owner)
	}
	<-l.ch
	t.unref(owner, l)
}

func (t *lockTable) unref(owner string, l *ownerLock) {
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, owner)
	}
	t.mu.Unlock()
}
