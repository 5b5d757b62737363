package pipeline

import (
	"context"
	"time"

	"horse.fit/showpipe/internal/kv"
)

// RedisLocker adapts the kv client to the Locker interface.
type RedisLocker struct {
	Client *kv.Client
}

func (l RedisLocker) AcquireLease(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	lease, err := l.Client.AcquireLease(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return lease, nil
}
