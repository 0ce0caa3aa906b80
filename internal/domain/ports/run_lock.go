package ports

import (
	"context"
	"time"
)

// ReleaseFunc releases a held lock
type ReleaseFunc func(ctx context.Context) error

// RunLocker serializes batch runs across service instances
type RunLocker interface {
	// TryAcquire returns acquired=false without error when another holder owns the key
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, acquired bool, err error)
}
