package service

import (
	"context"
	"sync"
	"time"

	"remo-voting/pkg/redis"

	"github.com/google/uuid"
)

// RedisLocker uses SET NX with a TTL so a crashed holder cannot wedge a hook.
type RedisLocker struct {
	redis *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{redis: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return nil, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Only drop the key if it is still ours; it may have expired and been retaken.
		_, _ = l.redis.DeleteIfEqual(releaseCtx, key, token)
	}, nil
}

// LocalLocker serialises within one process. Used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
