package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by reads on missing keys.
var Nil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Cache key constants
const (
	KeyPollResults = "voting:poll:%s:results"
	KeyPollDetail  = "voting:poll:%s:detail"
	KeyHookLock    = "voting:poll:%d:hook:%s"

	KeySchedulerDue  = "scheduler:due"  // sorted set, score = unix seconds
	KeySchedulerJobs = "scheduler:jobs" // hash, job id -> payload
	KeySchedulerDLQ  = "scheduler:dlq"
)

// TTL constants
const (
	TTLPollResults = 30 * time.Second
	TTLPollDetail  = 5 * time.Minute
	TTLHookLock    = 2 * time.Minute
)

// NewClient creates a new Redis client
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// logOp records the duration of a single command. Failures are logged at
// info since callers decide whether a cache error matters.
func (c *Client) logOp(op, key string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields, zap.Duration("duration", time.Since(start)))
	if key != "" {
		fields = append(fields, zap.String("key_prefix", prefixForLog(key)))
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Info(op, append(fields, zap.Error(err))...)
		return
	}
	c.log.Debug(op, fields...)
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.logOp("redis_get", key, start, err)
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.logOp("redis_set", key, start, err)
	return err
}

// SetNX sets a value only if it doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	c.logOp("redis_setnx", key, start, err, zap.Bool("result", ok))
	return ok, err
}

var deleteIfEqual = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// DeleteIfEqual removes key only while it still holds value. The check and
// the delete run as one script so an expired key retaken by someone else
// is left alone.
func (c *Client) DeleteIfEqual(ctx context.Context, key string, value string) (bool, error) {
	start := time.Now()
	n, err := deleteIfEqual.Run(ctx, c.rdb, []string{key}, value).Int64()
	c.logOp("redis_del_if_equal", key, start, err, zap.Bool("result", n == 1))
	return n == 1, err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.logOp("redis_del", "", start, err, zap.Int("keys", len(keys)))
	return err
}

// Exists checks if keys exist
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.Exists(ctx, keys...).Result()
	c.logOp("redis_exists", "", start, err, zap.Int64("result", n), zap.Int("keys", len(keys)))
	return n, err
}

// HSet sets hash fields
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
	start := time.Now()
	err := c.rdb.HSet(ctx, key, values...).Err()
	c.logOp("redis_hset", key, start, err, zap.Int("fields", len(values)/2))
	return err
}

// HGet reads one hash field
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	start := time.Now()
	val, err := c.rdb.HGet(ctx, key, field).Result()
	c.logOp("redis_hget", key, start, err)
	return val, err
}

// HDel removes hash fields
func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	start := time.Now()
	err := c.rdb.HDel(ctx, key, fields...).Err()
	c.logOp("redis_hdel", key, start, err, zap.Int("fields", len(fields)))
	return err
}

// HGetAll gets all fields from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	c.logOp("redis_hgetall", key, start, err, zap.Int("fields", len(m)))
	return m, err
}

// ZAdd adds a member with the given score
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	start := time.Now()
	err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	c.logOp("redis_zadd", key, start, err)
	return err
}

// ZRangeByScore returns members whose score is within [min, max]
func (c *Client) ZRangeByScore(ctx context.Context, key string, min, max string, limit int64) ([]string, error) {
	start := time.Now()
	members, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max, Count: limit}).Result()
	c.logOp("redis_zrangebyscore", key, start, err, zap.Int("members", len(members)))
	return members, err
}

// ZRem removes members and reports how many were present. A return of 1
// for a single member means this caller owns it.
func (c *Client) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	start := time.Now()
	n, err := c.rdb.ZRem(ctx, key, args...).Result()
	c.logOp("redis_zrem", key, start, err, zap.Int64("removed", n))
	return n, err
}

// ZScore returns the score of a member
func (c *Client) ZScore(ctx context.Context, key, member string) (float64, error) {
	start := time.Now()
	score, err := c.rdb.ZScore(ctx, key, member).Result()
	c.logOp("redis_zscore", key, start, err)
	return score, err
}

// RPush appends values to a list
func (c *Client) RPush(ctx context.Context, key string, values ...interface{}) error {
	start := time.Now()
	err := c.rdb.RPush(ctx, key, values...).Err()
	c.logOp("redis_rpush", key, start, err, zap.Int("values", len(values)))
	return err
}

// LLen returns the length of a list
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.LLen(ctx, key).Result()
	c.logOp("redis_llen", key, start, err)
	return n, err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	c.logOp("redis_ping", "", start, err)
	return err
}

// Pipeline creates a new pipeline for batch operations
func (c *Client) Pipeline() redis.Pipeliner {
	return c.rdb.Pipeline()
}

// prefixForLog returns a safe prefix of a key to avoid logging PII
func prefixForLog(key string) string {
	if len(key) <= 32 {
		return key
	}
	return key[:32] + "…"
}
