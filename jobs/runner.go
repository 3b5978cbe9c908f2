/*
Package jobs runs bulk jobs in fixed-size batches and records their progress.

A job's ids are split into batches of BatchSize. Batches run strictly one after the
other; the items of a batch run concurrently, bounded by the batch size. After each
batch exactly one delta is merged into the progress record, so a poller never observes
a half-applied batch. Item failures are recorded on the record and never stop the job.
Only a failure of the mechanism itself (the progress store) ends a job early, in which
case the record is marked failed when the store still accepts writes.

Redelivered jobs resume after the last merged batch, so every item is counted once.
When two deliveries of the same job overlap, the one that loses the race for a batch
stops without touching the record.
*/
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/cache"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/queue"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of items processed per batch
const DefaultBatchSize = 5

// ItemProcessor performs the unit of work for one id. Implementations must be safe to
// run again for an id that was already processed.
type ItemProcessor interface {
	// Process returns the title of the item, when known, and the item's failure
	Process(ctx context.Context, job *types.BulkJob, id int64) (title string, err error)
}

// ItemProcessorFunc adapts a function to ItemProcessor
type ItemProcessorFunc func(ctx context.Context, job *types.BulkJob, id int64) (string, error)

// Process calls f
func (f ItemProcessorFunc) Process(ctx context.Context, job *types.BulkJob, id int64) (string, error) {
	return f(ctx, job, id)
}

// RunnerOptions tunes the runner
type RunnerOptions struct {
	BatchSize   int
	Workers     int
	ItemTimeout time.Duration
}

// Stats is a snapshot of runner counters
type Stats struct {
	JobsInFlight      int64
	JobsCompleted     int64
	JobsFailed        int64
	ItemsSucceeded    int64
	ItemsFailed       int64
	MechanismFailures int64
}

// ItemFailureRate returns failed / (succeeded + failed), or 0 before any item ran
func (s Stats) ItemFailureRate() float64 {
	total := s.ItemsSucceeded + s.ItemsFailed
	if total == 0 {
		return 0
	}
	return float64(s.ItemsFailed) / float64(total)
}

// Runner pulls jobs from a queue and executes them
type Runner struct {
	store      cache.ProgressStore
	queue      queue.Queue
	processors map[types.Operation]ItemProcessor
	opts       RunnerOptions
	logger     *logrus.Logger

	inFlight          atomic.Int64
	jobsCompleted     atomic.Int64
	jobsFailed        atomic.Int64
	itemsSucceeded    atomic.Int64
	itemsFailed       atomic.Int64
	mechanismFailures atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. processors maps each operation to its unit of work.
func NewRunner(store cache.ProgressStore, q queue.Queue, processors map[types.Operation]ItemProcessor, opts RunnerOptions, logger *logrus.Logger) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		store:      store,
		queue:      q,
		processors: processors,
		opts:       opts,
		logger:     logger,
	}
}

// Start launches the worker goroutines
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.logger.WithFields(logrus.Fields{
		"workers":    r.opts.Workers,
		"batch_size": r.opts.BatchSize,
	}).Info("Bulk job runner started")
}

// Stop cancels the workers and waits for them. A job interrupted mid-run is not
// acknowledged and stays resumable.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("Bulk job runner stopped")
}

// Stats returns a snapshot of the runner counters
func (r *Runner) Stats() Stats {
	return Stats{
		JobsInFlight:      r.inFlight.Load(),
		JobsCompleted:     r.jobsCompleted.Load(),
		JobsFailed:        r.jobsFailed.Load(),
		ItemsSucceeded:    r.itemsSucceeded.Load(),
		ItemsFailed:       r.itemsFailed.Load(),
		MechanismFailures: r.mechanismFailures.Load(),
	}
}

func (r *Runner) worker(ctx context.Context, workerID int) {
	defer r.wg.Done()
	r.logger.WithField("worker_id", workerID).Info("Bulk worker started")

	for {
		d, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				r.logger.WithField("worker_id", workerID).Info("Bulk worker stopping")
				return
			}
			r.logger.WithError(err).WithField("worker_id", workerID).Error("Failed to dequeue bulk job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := r.Run(ctx, &d.Job); err != nil && ctx.Err() != nil {
			r.logger.WithFields(logrus.Fields{
				"worker_id":    workerID,
				"progress_key": d.Job.ProgressKey,
			}).Warn("Bulk job interrupted by shutdown, leaving it for redelivery")
			return
		}

		ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.queue.Ack(ackCtx, d); err != nil {
			r.logger.WithError(err).WithField("progress_key", d.Job.ProgressKey).Error("Failed to acknowledge bulk job")
		}
		cancel()
	}
}

// Run executes one job to completion. It returns an error only for mechanism failures
// and context cancellation; item failures are recorded on the progress record.
func (r *Runner) Run(ctx context.Context, job *types.BulkJob) error {
	start := time.Now()
	log := r.logger.WithFields(logrus.Fields{
		"progress_key": job.ProgressKey,
		"operation":    job.Operation,
		"entity_type":  job.EntityType,
		"request_id":   job.RequestID,
	})

	ctx, span := monitoring.CreateSpan(ctx, "bulk.run")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{
		"progress_key": job.ProgressKey,
		"operation":    job.Operation,
		"total_items":  len(job.IDs),
	})

	monitoring.UpdateActiveWorkers(int(r.inFlight.Add(1)))
	defer func() { monitoring.UpdateActiveWorkers(int(r.inFlight.Add(-1))) }()

	rec, err := r.store.Get(ctx, job.ProgressKey)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			log.Warn("Progress record missing or expired, dropping bulk job")
			monitoring.RecordBulkJob(string(job.Operation), "dropped", time.Since(start).Seconds())
			return nil
		}
		return r.fail(ctx, job, log, start, fmt.Errorf("load progress record: %w", err))
	}
	if rec.Status.IsTerminal() {
		log.WithField("status", rec.Status).Info("Bulk job already finished, skipping")
		return nil
	}

	processor, ok := r.processors[job.Operation]
	if !ok {
		return r.fail(ctx, job, log, start, fmt.Errorf("no processor registered for operation %q", job.Operation))
	}

	batches := chunk(job.IDs, r.opts.BatchSize)
	if rec.CurrentBatch > 0 {
		log.WithField("current_batch", rec.CurrentBatch).Info("Resuming bulk job after last recorded batch")
	}

	for i := rec.CurrentBatch; i < len(batches); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchStart := time.Now()
		delta := r.runBatch(ctx, job, processor, i, batches[i])
		if err := ctx.Err(); err != nil {
			// results of an interrupted batch are discarded; it reruns on redelivery
			return err
		}

		merged, err := r.store.Merge(ctx, job.ProgressKey, delta)
		if err != nil {
			if errors.Is(err, cache.ErrTerminal) {
				log.Warn("Progress record finished concurrently, stopping")
				return nil
			}
			if errors.Is(err, cache.ErrBatchApplied) {
				log.WithField("batch", i+1).Warn("Batch already merged by another delivery, stopping")
				return nil
			}
			return r.fail(ctx, job, log, start, fmt.Errorf("merge batch %d: %w", i+1, err))
		}

		monitoring.RecordBatch(string(job.Operation), time.Since(batchStart).Seconds())
		monitoring.RecordBulkItems(string(job.Operation), "success", delta.Success)
		monitoring.RecordBulkItems(string(job.Operation), "failed", delta.Failed)
		r.itemsSucceeded.Add(int64(delta.Success))
		r.itemsFailed.Add(int64(delta.Failed))

		log.WithFields(logrus.Fields{
			"batch":         i + 1,
			"total_batches": len(batches),
			"processed":     merged.Processed,
			"failed":        merged.Failed,
		}).Debug("Bulk batch merged")
	}

	if _, err := r.store.Merge(ctx, job.ProgressKey, types.ProgressDelta{Status: types.StatusCompleted}); err != nil {
		if errors.Is(err, cache.ErrTerminal) {
			return nil
		}
		return r.fail(ctx, job, log, start, fmt.Errorf("complete job: %w", err))
	}

	r.jobsCompleted.Add(1)
	monitoring.RecordBulkJob(string(job.Operation), string(types.StatusCompleted), time.Since(start).Seconds())
	log.WithFields(logrus.Fields{
		"total_items": len(job.IDs),
		"duration":    time.Since(start).String(),
	}).Info("Bulk job completed")
	return nil
}

// runBatch processes the items of one batch concurrently and folds their outcomes into
// one delta. batchIndex is zero based.
func (r *Runner) runBatch(ctx context.Context, job *types.BulkJob, processor ItemProcessor, batchIndex int, ids []int64) types.ProgressDelta {
	ctx, span := monitoring.CreateSpan(ctx, "bulk.batch")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{"batch": batchIndex + 1, "items": len(ids)})

	type outcome struct {
		title string
		err   error
	}
	results := make([]outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(len(ids))
	for idx, id := range ids {
		g.Go(func() error {
			title, err := r.processItem(ctx, job, processor, id)
			results[idx] = outcome{title: title, err: err}
			return nil
		})
	}
	_ = g.Wait()

	delta := types.ProgressDelta{
		Processed:    len(ids),
		CurrentBatch: batchIndex + 1,
		Status:       types.StatusProcessing,
	}
	for idx, res := range results {
		if res.err == nil {
			delta.Success++
			continue
		}
		delta.Failed++
		delta.Errors = append(delta.Errors, types.ProgressError{
			ID:    ids[idx],
			Title: res.title,
			Error: res.err.Error(),
		})
	}
	return delta
}

func (r *Runner) processItem(ctx context.Context, job *types.BulkJob, processor ItemProcessor, id int64) (title string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithFields(logrus.Fields{
				"progress_key": job.ProgressKey,
				"item_id":      id,
				"panic":        fmt.Sprint(p),
			}).Error("Bulk item panicked")
			err = fmt.Errorf("internal error: %v", p)
		}
	}()

	if r.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ItemTimeout)
		defer cancel()
	}

	title, err = processor.Process(ctx, job, id)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"progress_key": job.ProgressKey,
			"item_id":      id,
		}).Debug("Bulk item failed")
	}
	return title, err
}

// fail records a mechanism failure and makes a best-effort attempt to mark the record
// failed, so pollers stop instead of waiting on a stalled job.
func (r *Runner) fail(ctx context.Context, job *types.BulkJob, log *logrus.Entry, start time.Time, cause error) error {
	r.mechanismFailures.Add(1)
	r.jobsFailed.Add(1)
	monitoring.RecordBulkJob(string(job.Operation), string(types.StatusFailed), time.Since(start).Seconds())
	log.WithError(cause).Error("Bulk job failed")

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := r.store.Merge(markCtx, job.ProgressKey, types.ProgressDelta{
		Status:        types.StatusFailed,
		FailureReason: cause.Error(),
	})
	if err != nil {
		log.WithError(err).Warn("Could not mark progress record failed")
	}
	return cause
}

// chunk splits ids into consecutive slices of at most size elements
func chunk(ids []int64, size int) [][]int64 {
	batches := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
