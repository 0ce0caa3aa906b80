package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// RunLocker is a single-process ports.RunLocker with TTL semantics matching the redis locker
type RunLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewRunLocker creates an in-process run locker
func NewRunLocker() *RunLocker {
	return &RunLocker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// TryAcquire takes the lock unless another unexpired lease holds it
func (l *RunLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (ports.ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.leases[key]; ok && l.now().Before(held.expiresAt) {
		return nil, false, nil
	}

	token := uuid.New().String()
	l.leases[key] = lease{token: token, expiresAt: l.now().Add(ttl)}

	release := func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
		return nil
	}
	return release, true, nil
}
