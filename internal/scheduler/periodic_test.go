package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunOnce_SkipsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	p := NewPeriodic("reconcile", time.Hour, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
		return nil
	}, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, p.RunOnce(context.Background()))
	}()

	<-started
	assert.ErrorIs(t, p.RunOnce(context.Background()), ErrSkipped)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&runs))
}

func TestRunOnce_PropagatesJobError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPeriodic("reconcile", time.Hour, func(ctx context.Context) error { return boom }, zap.NewNop())
	assert.ErrorIs(t, p.RunOnce(context.Background()), boom)
	// the failed run released the slot
	assert.ErrorIs(t, p.RunOnce(context.Background()), boom)
}

func TestStart_RunsImmediatelyAndOnTicks(t *testing.T) {
	var runs int32
	p := NewPeriodic("reconcile", 20*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("keeps going")
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLocker(client)
	ctx := context.Background()

	rel, ok, err := l.TryLock(ctx, "lock:reconcile", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "lock:reconcile", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rel(ctx))
	assert.False(t, mr.Exists("lock:reconcile"))

	_, ok, err = l.TryLock(ctx, "lock:reconcile", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ReleaseDoesNotStealForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLocker(client)
	ctx := context.Background()

	rel, ok, err := l.TryLock(ctx, "lock:reconcile", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another replica took it
	mr.FastForward(2 * time.Second)
	_, ok, err = l.TryLock(ctx, "lock:reconcile", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, rel(ctx))
	assert.True(t, mr.Exists("lock:reconcile"))
}

func TestRunOnce_WithLockHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, mr.Set("lock:reconcile", "other-replica"))

	ran := false
	p := NewPeriodic("reconcile", time.Hour, func(ctx context.Context) error {
		ran = true
		return nil
	}, zap.NewNop()).WithLock(NewRedisLocker(client), "lock:reconcile", time.Minute)

	assert.ErrorIs(t, p.RunOnce(context.Background()), ErrSkipped)
	assert.False(t, ran)

	mr.Del("lock:reconcile")
	require.NoError(t, p.RunOnce(context.Background()))
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:reconcile"))
}
