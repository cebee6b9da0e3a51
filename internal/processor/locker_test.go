package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOrder(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, LockOrder("B", "A"))
	assert.Equal(t, []string{"A", "B"}, LockOrder("A", "B"))
	assert.Equal(t, []string{"A"}, LockOrder("A", "A"))
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "A", "B"
			if i%2 == 0 {
				a, b = b, a
			}
			unlock, err := locker.Lock(context.Background(), a, b)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, locker.locks, "per-key locks should be dropped once released")
}

func TestMemoryLocker_SameAccountDoesNotDeadlock(t *testing.T) {
	locker := NewMemoryLocker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlock, err := locker.Lock(ctx, "A", "A")
	require.NoError(t, err)
	unlock()
	unlock()
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, err := locker.Lock(context.Background(), "A", "B")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "B", "C")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	unlock, err = locker.Lock(context.Background(), "C", "B")
	require.NoError(t, err)
	unlock()
	assert.Empty(t, locker.locks)
}
