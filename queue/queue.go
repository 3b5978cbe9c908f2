// Package queue carries typed bulk jobs from the trigger endpoint to the job runner.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBackpressure is returned when the queue refuses a job because it is near capacity
	ErrBackpressure = errors.New("bulk queue under backpressure")
	// ErrClosed is returned once the queue has been closed
	ErrClosed = errors.New("bulk queue closed")
)

// Delivery is a dequeued job. It must be acknowledged once the job has been handled.
type Delivery struct {
	Job types.BulkJob
	raw string
}

// Queue is an at-least-once job queue
type Queue interface {
	Enqueue(ctx context.Context, job *types.BulkJob) error
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// BackpressureConfig controls when Enqueue refuses work
type BackpressureConfig struct {
	Enabled         bool
	RejectThreshold float64
	WaitTimeout     time.Duration
}

// ChannelQueue is an in-process Queue backed by a buffered channel
type ChannelQueue struct {
	jobs         chan types.BulkJob
	done         chan struct{}
	capacity     int
	backpressure BackpressureConfig
	logger       *logrus.Logger
}

// NewChannelQueue creates a queue holding at most size jobs
func NewChannelQueue(size int, bp BackpressureConfig, logger *logrus.Logger) *ChannelQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ChannelQueue{
		jobs:         make(chan types.BulkJob, size),
		done:         make(chan struct{}),
		capacity:     size,
		backpressure: bp,
		logger:       logger,
	}
}

// Enqueue adds a job, applying the backpressure policy
func (q *ChannelQueue) Enqueue(ctx context.Context, job *types.BulkJob) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	if q.backpressure.Enabled {
		currentLoad := float64(len(q.jobs)) / float64(q.capacity)
		if currentLoad >= q.backpressure.RejectThreshold {
			q.logger.WithFields(logrus.Fields{
				"progress_key":     job.ProgressKey,
				"current_load":     fmt.Sprintf("%.2f", currentLoad),
				"reject_threshold": fmt.Sprintf("%.2f", q.backpressure.RejectThreshold),
				"queue_size":       len(q.jobs),
				"max_queue_size":   q.capacity,
			}).Warn("Rejecting bulk job due to backpressure - queue near capacity")
			return fmt.Errorf("%w (load: %.2f%%)", ErrBackpressure, currentLoad*100)
		}
	}

	wait := q.backpressure.WaitTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case q.jobs <- *job:
		monitoring.UpdateQueueSize(len(q.jobs))
		q.logger.WithFields(logrus.Fields{
			"progress_key": job.ProgressKey,
			"operation":    job.Operation,
			"entity_type":  job.EntityType,
			"total_items":  len(job.IDs),
			"request_id":   job.RequestID,
			"queue_load":   fmt.Sprintf("%.2f", float64(len(q.jobs))/float64(q.capacity)),
		}).Info("Bulk job enqueued")
		return nil
	case <-timer.C:
		q.logger.WithFields(logrus.Fields{
			"progress_key":   job.ProgressKey,
			"wait_timeout":   wait.String(),
			"queue_size":     len(q.jobs),
			"max_queue_size": q.capacity,
		}).Warn("Bulk job submission timed out due to queue pressure")
		return fmt.Errorf("%w: timeout after %v", ErrBackpressure, wait)
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// Dequeue blocks until a job is available, the context ends or the queue is closed
func (q *ChannelQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case job := <-q.jobs:
		monitoring.UpdateQueueSize(len(q.jobs))
		return &Delivery{Job: job}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrClosed
	}
}

// Ack is a no-op; a channel delivery is gone once received
func (q *ChannelQueue) Ack(context.Context, *Delivery) error {
	return nil
}

// Len returns the number of waiting jobs
func (q *ChannelQueue) Len(context.Context) (int, error) {
	return len(q.jobs), nil
}

// Load returns the fill ratio of the queue
func (q *ChannelQueue) Load() float64 {
	return float64(len(q.jobs)) / float64(q.capacity)
}

// Close stops the queue. Jobs still buffered are dropped.
func (q *ChannelQueue) Close() error {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
	return nil
}
