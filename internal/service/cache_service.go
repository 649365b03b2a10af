package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/pkg/redis"

	"go.uber.org/zap"
)

// CacheService keeps poll read models in Redis with cache-aside reads and
// explicit invalidation after each accepted vote. A nil Redis client turns
// every call into a pass-through.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// Enabled reports whether a Redis client is attached
func (c *CacheService) Enabled() bool {
	return c != nil && c.redis != nil
}

// GetResultsWithCache returns cached results for slug or computes and stores
// them. Results of an open poll never outlive its end, so a cached entry
// cannot keep reporting closed=false once the poll has closed.
func (c *CacheService) GetResultsWithCache(ctx context.Context, slug string, now time.Time, fallback func(ctx context.Context) (*domain.PollResults, error)) (*domain.PollResults, error) {
	if !c.Enabled() {
		return fallback(ctx)
	}
	return getOrLoad(ctx, c, c.redis.KeyBuilder.KeyPollResults(slug), func(r *domain.PollResults) time.Duration {
		return resultsTTL(r, now)
	}, fallback)
}

func resultsTTL(r *domain.PollResults, now time.Time) time.Duration {
	if r.Closed || r.Ends.IsZero() {
		return redis.TTLPollResults
	}
	if left := r.Ends.Sub(now); left < redis.TTLPollResults {
		return left
	}
	return redis.TTLPollResults
}

// GetPollWithCache returns the cached poll detail for slug or loads and stores it
func (c *CacheService) GetPollWithCache(ctx context.Context, slug string, fallback func(ctx context.Context) (*domain.Poll, error)) (*domain.Poll, error) {
	if !c.Enabled() {
		return fallback(ctx)
	}
	return getOrLoad(ctx, c, c.redis.KeyBuilder.KeyPollDetail(slug), func(*domain.Poll) time.Duration {
		return redis.TTLPollDetail
	}, fallback)
}

func getOrLoad[T any](ctx context.Context, c *CacheService, key string, ttlFor func(*T) time.Duration, fallback func(ctx context.Context) (*T, error)) (*T, error) {
	cached, err := c.redis.Get(ctx, key)
	switch {
	case err == nil && cached != "":
		var v T
		if jsonErr := json.Unmarshal([]byte(cached), &v); jsonErr == nil {
			c.logger.Debug("Cache hit", zap.String("key", key))
			return &v, nil
		} else {
			c.logger.Warn("Cached value corrupted, reloading", zap.String("key", key), zap.Error(jsonErr))
		}
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("Cache read failed, reloading", zap.String("key", key), zap.Error(err))
	}

	v, err := fallback(ctx)
	if err != nil {
		return nil, err
	}

	ttl := ttlFor(v)
	if ttl <= 0 {
		// already stale; a zero TTL would never expire
		return v, nil
	}
	if data, err := json.Marshal(v); err == nil {
		if err := c.redis.Set(ctx, key, data, ttl); err != nil {
			c.logger.Warn("Failed to cache value", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

// InvalidatePoll drops every cached read model for the poll
func (c *CacheService) InvalidatePoll(ctx context.Context, slug string) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyPollResults(slug), c.redis.KeyBuilder.KeyPollDetail(slug)); err != nil {
		return fmt.Errorf("invalidate poll cache: %w", err)
	}
	return nil
}
