package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/locking"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = time.Minute

// Release only deletes the key when this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ locking.Lease = (*RedisLease)(nil)

// RedisLease is a distributed lease backed by a single Redis key per lease
// name. Holders are identified by a random token so an expired lease released
// late cannot evict the next holder.
type RedisLease struct {
	client *goredis.Client
	token  string
	script *goredis.Script
}

func NewRedisLease(client *goredis.Client) (*RedisLease, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	return &RedisLease{
		client: client,
		token:  uuid.NewString(),
		script: releaseScript,
	}, nil
}

func (l *RedisLease) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("lease is not initialized")
	}

	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return false, fmt.Errorf("lease name is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	if ctx == nil {
		ctx = context.Background()
	}

	ok, err := l.client.SetNX(ctx, leaseKey(normalized), l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context, name string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("lease is not initialized")
	}

	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return fmt.Errorf("lease name is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := l.script.Run(ctx, l.client, []string{leaseKey(normalized)}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

func leaseKey(name string) string {
	return "lease:" + name
}
