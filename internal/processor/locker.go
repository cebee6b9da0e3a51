package processor

import (
	"context"
	"sort"
	"sync"
)

// Locker serialises transfers touching the same accounts. Lock returns a
// release function that must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, accountA, accountB string) (unlock func(), err error)
}

// LockOrder returns the distinct keys of a pair in lexicographic order, which
// is the order every Locker acquires them in.
func LockOrder(accountA, accountB string) []string {
	if accountA == accountB {
		return []string{accountA}
	}
	keys := []string{accountA, accountB}
	sort.Strings(keys)
	return keys
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker. Per-key locks are created on demand
// and dropped when nobody holds or waits for them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, accountA, accountB string) (func(), error) {
	keys := LockOrder(accountA, accountB)
	held := make([]string, 0, len(keys))

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *MemoryLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, kl)
		return ctx.Err()
	}
}

func (l *MemoryLocker) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		kl := l.locks[keys[i]]
		l.mu.Unlock()

		<-kl.ch
		l.unref(keys[i], kl)
	}
}

func (l *MemoryLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
