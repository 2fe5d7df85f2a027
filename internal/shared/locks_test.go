package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestOrderLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewOrderLocker(client, time.Minute)
	ctx := context.Background()
	orderID := uuid.New()

	release, err := locker.Acquire(ctx, orderID)
	require.NoError(t, err)

	// Second acquire of the same order is refused while the lock is held.
	_, err = locker.Acquire(ctx, orderID)
	require.ErrorIs(t, err, ErrOrderLocked)

	// Other orders are unaffected.
	otherRelease, err := locker.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	require.NoError(t, otherRelease(ctx))

	require.NoError(t, release(ctx))

	release, err = locker.Acquire(ctx, orderID)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestOrderLockerExpiredLockNotReleasedByOldHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewOrderLocker(client, time.Second)
	ctx := context.Background()
	orderID := uuid.New()

	staleRelease, err := locker.Acquire(ctx, orderID)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	// The lock expired and a new holder took it over.
	release, err := locker.Acquire(ctx, orderID)
	require.NoError(t, err)

	// The stale holder's release must not free the new holder's lock.
	require.NoError(t, staleRelease(ctx))
	_, err = locker.Acquire(ctx, orderID)
	require.ErrorIs(t, err, ErrOrderLocked)

	require.NoError(t, release(ctx))
}

func TestNilOrderLockerIsNoop(t *testing.T) {
	var locker *OrderLocker
	release, err := locker.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}
