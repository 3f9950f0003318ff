package cache

import (
	"context"
	"time"
)

// CounterStore is a shared counter backend for fixed-window rate
// limiting. Implementations must make IncrementWithTTL atomic so that
// concurrent requests from the same client cannot undercount.
type CounterStore interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}
