package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "clinicbilling:scheduler:lease:"

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Lease keeps a job from running on more than one instance at a time.
type Lease interface {
	// Acquire returns a release func when the caller now holds the lease.
	Acquire(ctx context.Context, job string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// NewLease returns a redis-backed lease, or a lease that always grants when
// no client is configured.
func NewLease(client *redis.Client) Lease {
	if client == nil {
		return noopLease{}
	}
	return &RedisLease{
		client: client,
		script: redis.NewScript(leaseReleaseScript),
	}
}

type RedisLease struct {
	client *redis.Client
	script *redis.Script
}

func (l *RedisLease) Acquire(ctx context.Context, job string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if job == "" {
		return nil, false, errors.New("lease job is empty")
	}
	if ttl <= 0 {
		return nil, false, errors.New("lease ttl must be positive")
	}

	key := leaseKeyPrefix + job
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) error {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

type noopLease struct{}

func (noopLease) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
