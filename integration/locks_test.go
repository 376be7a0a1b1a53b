package integration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexTryLock(t *testing.T) {
	km := newKeyedMutex()

	unlock, ok := km.TryLock("a")
	require.True(t, ok)

	_, ok = km.TryLock("a")
	require.False(t, ok)

	// Other keys are independent.
	unlockB, ok := km.TryLock("b")
	require.True(t, ok)
	unlockB()

	unlock()

	unlock, ok = km.TryLock("a")
	require.True(t, ok)
	unlock()
}

func TestKeyedMutexLockSerializes(t *testing.T) {
	km := newKeyedMutex()

	counter := 0

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := km.Lock("key")
			counter++
			unlock()
		}()
	}

	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestKeyedMutexEntriesAreReclaimed(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("a")
	unlock()

	unlock, ok := km.TryLock("b")
	require.True(t, ok)
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	require.Empty(t, km.locks)
}
