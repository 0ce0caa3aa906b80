package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RunLocker is a distributed ports.RunLocker backed by a single redis key per run
type RunLocker struct {
	client goredis.UniversalClient
	logger *zap.Logger
}

var _ ports.RunLocker = (*RunLocker)(nil)

// NewClient creates a go-redis client from config
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRunLocker wraps an existing client
func NewRunLocker(client goredis.UniversalClient, logger *zap.Logger) *RunLocker {
	return &RunLocker{client: client, logger: logger}
}

// TryAcquire sets key to a fresh token with NX and a TTL
func (l *RunLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (ports.ReleaseFunc, bool, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	l.logger.Debug("Run lock acquired",
		zap.String("key", key),
		zap.Duration("ttl", ttl),
	)

	release := func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("failed to release run lock %s: %w", key, err)
		}
		if deleted == 0 {
			l.logger.Warn("Run lock expired before release",
				zap.String("key", key),
			)
		}
		return nil
	}
	return release, true, nil
}

// Ping checks connectivity for the health endpoint
func (l *RunLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (l *RunLocker) Close() error {
	return l.client.Close()
}
