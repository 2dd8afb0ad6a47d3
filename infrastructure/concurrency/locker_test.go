package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocker_MutualExclusion(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "ws-1")
			require.NoError(t, err)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedLocker_IndependentWorkspacesDoNotContend(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "ws-a")
	require.NoError(t, err)
	defer releaseA()

	// Holding ws-a must not block ws-b.
	done := make(chan struct{})
	go func() {
		releaseB, err := locker.Acquire(ctx, "ws-b")
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring an unrelated workspace lock blocked")
	}
}

func TestKeyedLocker_AcquireRespectsContextCancellation(t *testing.T) {
	locker := NewKeyedLocker()

	release, err := locker.Acquire(context.Background(), "ws-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, "ws-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedLocker_ReleaseHandsOverToWaiter(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "ws-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		releaseNext, err := locker.Acquire(ctx, "ws-1")
		assert.NoError(t, err)
		releaseNext()
		close(acquired)
	}()

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
}
