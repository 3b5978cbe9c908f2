package cache

import (
	"fmt"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// DefaultErrorCap bounds the recent-errors window kept on a record
const DefaultErrorCap = 50

// ApplyDelta merges delta into a copy of rec and returns it. The input record is not
// modified. All record invariants are enforced here so every store implementation
// behaves identically. A delta that carries items must name the batch right after the
// last merged one; a repeat of an earlier batch fails with ErrBatchApplied.
func ApplyDelta(rec *types.ProgressRecord, delta types.ProgressDelta, errorCap int, now time.Time) (*types.ProgressRecord, error) {
	if rec.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: record %s is %s", ErrTerminal, rec.Key, rec.Status)
	}
	if delta.Processed < 0 || delta.Success < 0 || delta.Failed < 0 {
		return nil, fmt.Errorf("%w: negative increment", ErrInvalidDelta)
	}
	if delta.Success+delta.Failed != delta.Processed {
		return nil, fmt.Errorf("%w: success(%d)+failed(%d) != processed(%d)", ErrInvalidDelta, delta.Success, delta.Failed, delta.Processed)
	}
	if delta.Processed > 0 {
		switch {
		case delta.CurrentBatch <= rec.CurrentBatch:
			return nil, fmt.Errorf("%w: batch %d already merged (current %d)", ErrBatchApplied, delta.CurrentBatch, rec.CurrentBatch)
		case delta.CurrentBatch != rec.CurrentBatch+1:
			return nil, fmt.Errorf("%w: batch %d skips ahead of %d", ErrInvalidDelta, delta.CurrentBatch, rec.CurrentBatch)
		}
	}
	if rec.Processed+delta.Processed > rec.Total {
		return nil, fmt.Errorf("%w: processed would exceed total (%d+%d > %d)", ErrInvalidDelta, rec.Processed, delta.Processed, rec.Total)
	}

	out := *rec
	out.Errors = append([]types.ProgressError(nil), rec.Errors...)

	out.Processed += delta.Processed
	out.Success += delta.Success
	out.Failed += delta.Failed

	if delta.CurrentBatch > out.CurrentBatch {
		out.CurrentBatch = delta.CurrentBatch
	}

	if delta.Status != "" {
		if !rec.Status.CanTransitionTo(delta.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidDelta, rec.Status, delta.Status)
		}
		if delta.Status == types.StatusCompleted && out.Processed != out.Total {
			return nil, fmt.Errorf("%w: completed with %d of %d processed", ErrInvalidDelta, out.Processed, out.Total)
		}
		out.Status = delta.Status
	}
	if out.Status == types.StatusFailed {
		out.FailureReason = delta.FailureReason
	}

	if len(delta.Errors) > 0 {
		out.Errors = append(out.Errors, delta.Errors...)
	}
	if errorCap <= 0 {
		errorCap = DefaultErrorCap
	}
	if len(out.Errors) > errorCap {
		out.Errors = append([]types.ProgressError(nil), out.Errors[len(out.Errors)-errorCap:]...)
	}
	if out.Errors == nil {
		out.Errors = []types.ProgressError{}
	}

	out.UpdatedAt = now
	return &out, nil
}
