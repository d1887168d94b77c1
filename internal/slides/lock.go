package slides

import "sync"

// dirLocks serializes slide extraction per slides directory. Callers that
// find the lock held are told they are queued before blocking.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*dirLock
}

type dirLock struct {
	mu      sync.Mutex
	waiters int
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]*dirLock)}
}

// Acquire takes the lock for dir, invoking onQueued first when another
// extraction currently holds it. The returned func releases the lock.
func (d *dirLocks) Acquire(dir string, onQueued func()) func() {
	d.mu.Lock()
	l, ok := d.locks[dir]
	if !ok {
		l = &dirLock{}
		d.locks[dir] = l
	}
	queued := l.waiters > 0 || !l.mu.TryLock()
	if queued {
		l.waiters++
		d.mu.Unlock()
		if onQueued != nil {
			onQueued()
		}
		l.mu.Lock()
		d.mu.Lock()
		l.waiters--
	}
	d.mu.Unlock()

	return func() { l.mu.Unlock() }
}
