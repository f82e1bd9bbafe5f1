// Package lock provides the leader lock that keeps a single simulator tick
// running across server instances.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker acquires a named lock for at most ttl. Acquire reports false, with
// no error, when somebody else holds the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken over is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(ctx context.Context, cfg models.RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("Failed to close Redis client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	zap.L().Info("Connected to Redis", zap.String("addr", cfg.Addr))
	return NewRedisLockerFromClient(client), nil
}

func NewRedisLockerFromClient(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "wallet-ledger:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.New().String()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release must run even when the tick's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		deleted, err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Int64()
		if err != nil {
			zap.L().Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
			return
		}
		if deleted == 0 {
			zap.L().Warn("Lock expired before release", zap.String("key", key))
		}
	}
	return release, true, nil
}

func (l *RedisLocker) Close() {
	if err := l.client.Close(); err != nil {
		zap.L().Warn("Failed to close Redis client", zap.Error(err))
	}
}

// LocalLocker serializes holders within one process. It is used when Redis
// is not configured, which is only correct for a single server instance.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}
