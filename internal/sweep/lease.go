package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lease lets several sweeper replicas share one schedule; only the holder
// runs a pass.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLease is a SET NX lock with a TTL so a crashed holder frees it.
type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLease{client: client, key: key, token: uuid.NewString(), ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sweep: acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("sweep: release lease %s: %w", l.key, err)
	}
	return nil
}
