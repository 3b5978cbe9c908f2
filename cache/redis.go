package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/redis/go-redis/v9"
)

const maxMergeRetries = 10

// RedisStore implements ProgressStore on top of Redis so web and worker processes share
// progress state.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	errorCap int
	now      func() time.Time
}

// NewRedisStore creates a new RedisStore. Keys are stored as prefix + progress key.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, errorCap int) *RedisStore {
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		errorCap: errorCap,
		now:      time.Now,
	}
}

func (r *RedisStore) redisKey(key types.ProgressKey) string {
	return r.prefix + string(key)
}

// Create stores the initial record using SET NX with the configured TTL
func (r *RedisStore) Create(ctx context.Context, rec *types.ProgressRecord) error {
	if rec.Key == "" {
		return errors.New("key cannot be empty")
	}
	start := time.Now()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}

	status, err := r.client.SetArgs(ctx, r.redisKey(rec.Key), payload, redis.SetArgs{Mode: "NX", TTL: r.ttl}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			monitoring.RecordStoreOperation("create", "conflict", time.Since(start).Seconds())
			return fmt.Errorf("%w: %s", ErrKeyExists, rec.Key)
		}
		monitoring.RecordStoreOperation("create", "failed", time.Since(start).Seconds())
		return fmt.Errorf("redis SET NX: %w", err)
	}
	if status != "OK" {
		monitoring.RecordStoreOperation("create", "conflict", time.Since(start).Seconds())
		return fmt.Errorf("%w: %s", ErrKeyExists, rec.Key)
	}

	monitoring.RecordStoreOperation("create", "success", time.Since(start).Seconds())
	return nil
}

// Get reads and decodes a record
func (r *RedisStore) Get(ctx context.Context, key types.ProgressKey) (*types.ProgressRecord, error) {
	return r.get(ctx, r.client.Get, key)
}

func (r *RedisStore) get(ctx context.Context, getter func(context.Context, string) *redis.StringCmd, key types.ProgressKey) (*types.ProgressRecord, error) {
	raw, err := getter(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec types.ProgressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode progress record %s: %w", key, err)
	}
	return &rec, nil
}

// Merge performs an optimistic WATCH/MULTI read-modify-write. Concurrent writers cause
// the transaction to be retried; the TTL set at creation is preserved.
func (r *RedisStore) Merge(ctx context.Context, key types.ProgressKey, delta types.ProgressDelta) (*types.ProgressRecord, error) {
	start := time.Now()
	rk := r.redisKey(key)

	var merged *types.ProgressRecord
	txf := func(tx *redis.Tx) error {
		current, err := r.get(ctx, tx.Get, key)
		if err != nil {
			return err
		}

		next, err := ApplyDelta(current, delta, r.errorCap, r.now())
		if err != nil {
			return err
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal progress record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, rk, payload, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			merged = next
		}
		return err
	}

	for attempt := 0; attempt < maxMergeRetries; attempt++ {
		err := r.client.Watch(ctx, txf, rk)
		switch {
		case err == nil:
			monitoring.RecordStoreOperation("merge", "success", time.Since(start).Seconds())
			return merged, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound):
			monitoring.RecordStoreOperation("merge", "not_found", time.Since(start).Seconds())
			return nil, err
		case errors.Is(err, ErrInvalidDelta), errors.Is(err, ErrTerminal), errors.Is(err, ErrBatchApplied):
			monitoring.RecordStoreOperation("merge", "rejected", time.Since(start).Seconds())
			return nil, err
		default:
			monitoring.RecordStoreOperation("merge", "failed", time.Since(start).Seconds())
			return nil, fmt.Errorf("redis merge %s: %w", key, err)
		}
	}

	monitoring.RecordStoreOperation("merge", "conflict", time.Since(start).Seconds())
	return nil, fmt.Errorf("redis merge %s: gave up after %d concurrent modifications", key, maxMergeRetries)
}

// Delete removes a record
func (r *RedisStore) Delete(ctx context.Context, key types.ProgressKey) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection
func (r *RedisStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisConfig holds configuration for the Redis connection
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewRedisClient creates a new Redis client with the given configuration
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
