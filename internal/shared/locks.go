package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OrderLockKey builds redis keys for order critical sections.
func OrderLockKey(orderID uuid.UUID) string {
	return fmt.Sprintf("orders:%s:lock", orderID)
}

// ErrOrderLocked indicates another status change is in flight for the order.
var ErrOrderLocked = errors.New("order is locked by another operation")

// OrderLocker serializes status changes per order via redis.
type OrderLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOrderLocker constructs the locker. TTL bounds lock leakage after crashes.
func NewOrderLocker(client *redis.Client, ttl time.Duration) *OrderLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &OrderLocker{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the per-order lock and returns a release func. Release only
// deletes the key when the stored token still matches, so an expired lock
// taken over by another request is never released by the first holder.
func (l *OrderLocker) Acquire(ctx context.Context, orderID uuid.UUID) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	key := OrderLockKey(orderID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderLocked
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
