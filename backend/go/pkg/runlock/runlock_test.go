package runlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "run-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	exerciseMutualExclusion(t, l)
	assert.Equal(t, 0, l.Size())
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_Timeout(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.Size())
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	return newRedisLockerTTL(t, time.Second)
}

func newRedisLockerTTL(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, WithRetryInterval(time.Millisecond)), mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	l, _ := newRedisLocker(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisLocker_ReleaseRemovesKey(t *testing.T) {
	l, mr := newRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("geocms:runlock:run-1"))

	unlock()
	assert.False(t, mr.Exists("geocms:runlock:run-1"))
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	l, mr := newRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "run-1")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	require.NoError(t, mr.Set("geocms:runlock:run-1", "someone-else"))
	unlock()

	v, err := mr.Get("geocms:runlock:run-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisLocker_Timeout(t *testing.T) {
	l, _ := newRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "run-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "run-1")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	ttl := 300 * time.Millisecond
	l, mr := newRedisLockerTTL(t, ttl)
	unlock, err := l.Lock(context.Background(), "run-1")
	require.NoError(t, err)

	// miniredis only expires keys on FastForward; total advance exceeds ttl,
	// each step stays below it and a refresh runs in between.
	for i := 0; i < 4; i++ {
		mr.FastForward(ttl / 2)
		time.Sleep(ttl / 2)
		require.True(t, mr.Exists("geocms:runlock:run-1"), "lock expired on step %d", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "run-1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("geocms:runlock:run-1"))
}

func TestRedisLocker_StopsRenewingAfterUnlock(t *testing.T) {
	ttl := 150 * time.Millisecond
	l, mr := newRedisLockerTTL(t, ttl)
	unlock, err := l.Lock(context.Background(), "run-1")
	require.NoError(t, err)
	unlock()

	require.NoError(t, mr.Set("geocms:runlock:run-1", "other"))
	mr.SetTTL("geocms:runlock:run-1", ttl)
	time.Sleep(ttl)
	mr.FastForward(ttl + time.Millisecond)
	assert.False(t, mr.Exists("geocms:runlock:run-1"))
}
