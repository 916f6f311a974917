package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLocker(rdb, ttl), mr
}

func TestLockerMutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must be a skip, not a double-run")

	// Another campaign's lease is independent.
	release2, ok, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()

	release()

	_, ok, err = locker.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "released lease can be re-acquired")
}

func TestLockerLeaseExpiry(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	staleRelease, ok, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// A stuck runner's lease expires and a later tick takes over.
	mr.FastForward(2 * time.Minute)

	release, ok, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's release must not free the new holder's lease.
	staleRelease()
	_, ok, err = locker.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
}
