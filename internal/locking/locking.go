package locking

import (
	"context"
	"time"
)

// Lease serializes background work across replicas. Acquire returns false
// when another holder owns the named lease.
type Lease interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}
