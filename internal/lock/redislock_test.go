package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/lock"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestWithLockSerialises(t *testing.T) {
	client := newClient(t)

	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, "demo", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstDone

	go func() {
		err := locker.WithLock(ctx, "demo", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestGuardAcquireRelease(t *testing.T) {
	client := newClient(t)
	guard := lock.Guard{R: client, Prefix: "replay:"}
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "wh:ep:ev", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = guard.Acquire(ctx, "wh:ep:ev", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, guard.Release(ctx, "wh:ep:ev"))

	ok, err = guard.Acquire(ctx, "wh:ep:ev", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
