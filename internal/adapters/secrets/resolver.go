package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSecretNotFound is returned when a backend has no value at the path
var ErrSecretNotFound = errors.New("secret not found")

// Secret is a resolved secret value with its backend version
type Secret struct {
	Value   string
	Version string
}

// Resolver reads secrets by path. Implementations are read-only; rotation
// happens in the backend and is picked up when the cache entry expires.
type Resolver interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

// Backend names accepted by SECRET_MANAGER
const (
	BackendLocal = "local"
	BackendAWS   = "aws"
	BackendVault = "vault"
)

// Config selects and configures a backend
type Config struct {
	Backend  string
	CacheTTL time.Duration

	LocalPath string
	AWS       AWSConfig
	Vault     VaultConfig
}

// New builds the configured backend wrapped in a TTL cache
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Resolver, error) {
	var (
		backend Resolver
		err     error
	)

	switch strings.ToLower(cfg.Backend) {
	case "", BackendLocal:
		backend = NewLocalResolver(cfg.LocalPath, logger)
	case BackendAWS:
		backend, err = NewAWSResolver(ctx, cfg.AWS, logger)
	case BackendVault:
		backend, err = NewVaultResolver(cfg.Vault, logger)
	default:
		return nil, fmt.Errorf("unsupported secret manager %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewCachedResolver(backend, cfg.CacheTTL), nil
}

// Lookup returns the secret at path, or fallback when path is empty.
// A configured path that cannot be resolved is an error.
func Lookup(ctx context.Context, r Resolver, path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	secret, err := r.GetSecret(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret %s: %w", path, err)
	}
	return secret.Value, nil
}

type cacheEntry struct {
	secret    *Secret
	expiresAt time.Time
}

// CachedResolver memoizes another resolver for ttl
type CachedResolver struct {
	next Resolver
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachedResolver wraps next. A non-positive ttl disables caching.
func NewCachedResolver(next Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetSecret serves from cache until the entry expires
func (c *CachedResolver) GetSecret(ctx context.Context, path string) (*Secret, error) {
	if c.ttl <= 0 {
		return c.next.GetSecret(ctx, path)
	}

	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.secret, nil
	}

	secret, err := c.next.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{secret: secret, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return secret, nil
}

// Invalidate drops a cached path
func (c *CachedResolver) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}
