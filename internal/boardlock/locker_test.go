package boardlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, 5*time.Second)
}

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := locker.Lock(ctx, "brd_1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalMutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocalHonoursContext(t *testing.T) {
	locker := NewLocal()
	unlock, err := locker.Lock(context.Background(), "brd_1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "brd_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(context.Background(), "brd_2")
	require.NoError(t, err)
	other()
}

func TestLocalUnlockTwice(t *testing.T) {
	locker := NewLocal()
	unlock, err := locker.Lock(context.Background(), "brd_1")
	require.NoError(t, err)
	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "brd_1")
	require.NoError(t, err)
	again()
}

func TestRedisMutualExclusion(t *testing.T) {
	_, locker := setupTestRedis(t)
	exerciseMutualExclusion(t, locker)
}

func TestRedisTimeout(t *testing.T) {
	_, locker := setupTestRedis(t)
	unlock, err := locker.Lock(context.Background(), "brd_1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "brd_1")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestRedisReleaseOnlyOwnToken(t *testing.T) {
	mr, locker := setupTestRedis(t)
	unlock, err := locker.Lock(context.Background(), "brd_1")
	require.NoError(t, err)

	// lease expires and another holder takes over
	mr.FastForward(6 * time.Second)
	require.False(t, mr.Exists("boardlock:brd_1"))
	require.NoError(t, mr.Set("boardlock:brd_1", "someone-else"))

	unlock()
	got, err := mr.Get("boardlock:brd_1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
