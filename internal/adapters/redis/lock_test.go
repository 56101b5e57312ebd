package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/internal/adapters/redis"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker := redis.NewLocker(client, "grove:test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "h_abstraction", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)
	assert.True(t, mr.Exists("grove:test:lock:h_abstraction"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("grove:test:lock:h_abstraction"))
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker1 := redis.NewLocker(client, "grove:test:")
	locker2 := redis.NewLocker(client, "grove:test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared_family", 5*time.Second)
	require.NoError(t, err)

	// The second locker polls until its context expires.
	ctxTimeout, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = locker2.Lock(ctxTimeout, "shared_family", 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), time.Now(), 200*time.Millisecond)

	// Released, the second locker gets through.
	require.NoError(t, unlock1(ctx))
	unlock2, err := locker2.Lock(ctx, "shared_family", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)

	assert.True(t, mr.Exists("grove:test:lock:shared_family"))
}
