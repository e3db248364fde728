package billing_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
)

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	t.Parallel()

	l := billing.NewMemoryLocker()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "acc")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	t.Parallel()

	l := billing.NewMemoryLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestMemoryLocker_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	l := billing.NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "acc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "acc")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "acc")
	require.NoError(t, err)
	again()
}

func TestMemoryNonceStore(t *testing.T) {
	t.Parallel()

	s := billing.NewMemoryNonceStore(time.Hour)
	ctx := context.Background()

	ok, err := s.Consume(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Consume(ctx, "n2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryNonceStore_ConcurrentConsumeWinsOnce(t *testing.T) {
	t.Parallel()

	s := billing.NewMemoryNonceStore(0)
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Consume(context.Background(), "shared"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
