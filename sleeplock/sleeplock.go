// Package sleeplock provides a long-term exclusive lock.
//
// A goroutine that finds the lock held waits on a condition variable instead
// of spinning, so the holder may keep the lock across disk I/O. Unlike
// sync.Mutex, a Lock can report whether it is held. It does not record which
// goroutine holds it, so the checks callers build on Holding catch a buffer
// or inode that nobody locked, not one locked by some other goroutine.
package sleeplock

import (
	"sync"
)

type Lock struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	held    bool
	waiters uint64
	name    string
}

func MkLock(name string) *Lock {
	mu := new(sync.Mutex)
	return &Lock{
		mu:   mu,
		cond: sync.NewCond(mu),
		name: name,
	}
}

func (l *Lock) Acquire() {
	l.mu.Lock()
	for l.held {
		l.waiters += 1
		l.cond.Wait()
		l.waiters -= 1
	}
	l.held = true
	l.mu.Unlock()
}

func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		panic("release " + l.name)
	}
	l.held = false
	if l.waiters > 0 {
		l.cond.Signal()
	}
	l.mu.Unlock()
}

// Holding reports whether any goroutine holds the lock.
func (l *Lock) Holding() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
