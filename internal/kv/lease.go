package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "showpipe:lock:"

// ErrLeaseHeld means another owner currently holds the lease. Expected
// under concurrent scheduling, not a failure.
var ErrLeaseHeld = errors.New("lease already held")

// releaseScript deletes the lease only when the caller still owns it, so
// an expired lease taken over by another run is never released from under
// the new owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Lease is a TTL-bounded mutual-exclusion token keyed by pipeline name.
type Lease struct {
	client *Client
	key    string
	token  string
}

// AcquireLease attempts a non-blocking acquire. Returns ErrLeaseHeld when
// the key already exists.
func (c *Client) AcquireLease(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if c == nil || c.rdb == nil {
		return nil, fmt.Errorf("kv client is not initialized")
	}

	key := leaseKeyPrefix + name
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return &Lease{client: c, key: key, token: token}, nil
}

// Release drops the lease if this owner still holds it. Releasing an
// already-expired lease is not an error.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil || l.client.rdb == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %q: %w", l.key, err)
	}
	return nil
}

// Token exposes the owner token for log correlation.
func (l *Lease) Token() string {
	if l == nil {
		return ""
	}
	return l.token
}
