package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisQueue is a reliable list queue. Jobs are LPUSHed onto key and atomically moved
// to key:processing on dequeue; Ack removes them from the processing list. Deliveries
// that were never acknowledged are put back by Recover.
type RedisQueue struct {
	client        redis.UniversalClient
	key           string
	processingKey string
	maxLen        int
	backpressure  BackpressureConfig
	blockTimeout  time.Duration
	logger        *logrus.Logger
}

// NewRedisQueue creates a queue on the given list key. maxLen is used for the
// backpressure load calculation only.
func NewRedisQueue(client redis.UniversalClient, key string, maxLen int, bp BackpressureConfig, logger *logrus.Logger) *RedisQueue {
	if maxLen <= 0 {
		maxLen = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
		maxLen:        maxLen,
		backpressure:  bp,
		blockTimeout:  5 * time.Second,
		logger:        logger,
	}
}

// Enqueue pushes a job unless the list is above the reject threshold
func (q *RedisQueue) Enqueue(ctx context.Context, job *types.BulkJob) error {
	if q.backpressure.Enabled {
		n, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("redis llen: %w", err)
		}
		currentLoad := float64(n) / float64(q.maxLen)
		if currentLoad >= q.backpressure.RejectThreshold {
			q.logger.WithFields(logrus.Fields{
				"progress_key":     job.ProgressKey,
				"current_load":     fmt.Sprintf("%.2f", currentLoad),
				"reject_threshold": fmt.Sprintf("%.2f", q.backpressure.RejectThreshold),
				"queue_size":       n,
			}).Warn("Rejecting bulk job due to backpressure - queue near capacity")
			return fmt.Errorf("%w (load: %.2f%%)", ErrBackpressure, currentLoad*100)
		}
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal bulk job: %w", err)
	}

	n, err := q.client.LPush(ctx, q.key, payload).Result()
	if err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	monitoring.UpdateQueueSize(int(n))

	q.logger.WithFields(logrus.Fields{
		"progress_key": job.ProgressKey,
		"operation":    job.Operation,
		"entity_type":  job.EntityType,
		"total_items":  len(job.IDs),
		"request_id":   job.RequestID,
	}).Info("Bulk job enqueued")
	return nil
}

// Dequeue blocks until a job is available or ctx ends
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		raw, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", q.blockTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis blmove: %w", err)
		}

		var job types.BulkJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Poison message: drop it from the processing list so it is not recovered forever.
			q.logger.WithError(err).WithField("payload", raw).Error("Dropping undecodable bulk job")
			q.client.LRem(ctx, q.processingKey, 1, raw)
			continue
		}
		return &Delivery{Job: job, raw: raw}, nil
	}
}

// Ack removes the delivery from the processing list
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("redis lrem: %w", err)
	}
	return nil
}

// Recover moves every unacknowledged delivery back onto the queue, oldest first in line.
// It is meant to run once at worker startup, before any Dequeue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("redis lmove: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.WithField("recovered_count", moved).Warn("Requeued unacknowledged bulk jobs")
	}
	return moved, nil
}

// Len returns the number of waiting jobs
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the redis client is owned by the caller
func (q *RedisQueue) Close() error {
	return nil
}
