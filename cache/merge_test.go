package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(total int) *types.ProgressRecord {
	return types.NewProgressRecord("refresh_movie_1700000000_abcdef12", types.OperationRefresh, types.EntityMovie, total, 5, time.Unix(1700000000, 0))
}

func TestApplyDeltaBatchUpdate(t *testing.T) {
	rec := newRecord(7)
	now := time.Unix(1700000100, 0)

	merged, err := ApplyDelta(rec, types.ProgressDelta{
		Processed:    5,
		Success:      4,
		Failed:       1,
		Errors:       []types.ProgressError{{ID: 3, Title: "Heat", Error: "tmdb: not found"}},
		CurrentBatch: 1,
		Status:       types.StatusProcessing,
	}, 50, now)
	require.NoError(t, err)

	assert.Equal(t, 5, merged.Processed)
	assert.Equal(t, 4, merged.Success)
	assert.Equal(t, 1, merged.Failed)
	assert.Equal(t, 1, merged.CurrentBatch)
	assert.Equal(t, types.StatusProcessing, merged.Status)
	assert.Len(t, merged.Errors, 1)
	assert.Equal(t, now, merged.UpdatedAt)

	// input untouched
	assert.Equal(t, 0, rec.Processed)
	assert.Equal(t, types.StatusQueued, rec.Status)
	assert.Empty(t, rec.Errors)
}

func TestApplyDeltaRejectsInvariantViolations(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		delta types.ProgressDelta
	}{
		{"counts disagree", types.ProgressDelta{Processed: 2, Success: 1, Failed: 0}},
		{"negative increment", types.ProgressDelta{Processed: -1, Success: -1}},
		{"exceeds total", types.ProgressDelta{Processed: 8, Success: 8, CurrentBatch: 1}},
		{"completed early", types.ProgressDelta{Processed: 5, Success: 5, CurrentBatch: 1, Status: types.StatusCompleted}},
		{"skips a batch", types.ProgressDelta{Processed: 5, Success: 5, CurrentBatch: 2}},
		{"unknown status", types.ProgressDelta{Status: types.Status("paused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyDelta(newRecord(7), tt.delta, 50, now)
			assert.ErrorIs(t, err, ErrInvalidDelta)
		})
	}
}

func TestApplyDeltaStatusNeverRegresses(t *testing.T) {
	rec := newRecord(7)
	rec.Status = types.StatusProcessing

	_, err := ApplyDelta(rec, types.ProgressDelta{Status: types.StatusQueued}, 50, time.Now())
	assert.ErrorIs(t, err, ErrInvalidDelta)
}

func TestApplyDeltaTerminalRecord(t *testing.T) {
	rec := newRecord(7)
	rec.Processed, rec.Success = 7, 7
	rec.Status = types.StatusCompleted

	_, err := ApplyDelta(rec, types.ProgressDelta{}, 50, time.Now())
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestApplyDeltaCurrentBatchMonotonic(t *testing.T) {
	rec := newRecord(7)
	rec.CurrentBatch = 2

	merged, err := ApplyDelta(rec, types.ProgressDelta{CurrentBatch: 1}, 50, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, merged.CurrentBatch)
}

func TestApplyDeltaRejectsRepeatedBatch(t *testing.T) {
	rec := newRecord(10)
	delta := types.ProgressDelta{Processed: 5, Success: 5, CurrentBatch: 1, Status: types.StatusProcessing}

	merged, err := ApplyDelta(rec, delta, 50, time.Now())
	require.NoError(t, err)

	_, err = ApplyDelta(merged, delta, 50, time.Now())
	assert.ErrorIs(t, err, ErrBatchApplied)
	assert.NotErrorIs(t, err, ErrInvalidDelta)

	missingBatch := types.ProgressDelta{Processed: 5, Success: 5}
	_, err = ApplyDelta(merged, missingBatch, 50, time.Now())
	assert.ErrorIs(t, err, ErrBatchApplied)

	assert.Equal(t, 5, merged.Processed)
	assert.Equal(t, 1, merged.CurrentBatch)
}

func TestApplyDeltaErrorCapKeepsMostRecent(t *testing.T) {
	rec := newRecord(100)
	now := time.Now()

	var err error
	for batch := 0; batch < 12; batch++ {
		errs := make([]types.ProgressError, 5)
		for i := range errs {
			id := int64(batch*5 + i + 1)
			errs[i] = types.ProgressError{ID: id, Title: fmt.Sprintf("title %d", id), Error: "boom"}
		}
		rec, err = ApplyDelta(rec, types.ProgressDelta{Processed: 5, Failed: 5, Errors: errs, CurrentBatch: batch + 1}, 20, now)
		require.NoError(t, err)
	}

	assert.Equal(t, 60, rec.Failed)
	require.Len(t, rec.Errors, 20)
	assert.Equal(t, int64(41), rec.Errors[0].ID)
	assert.Equal(t, int64(60), rec.Errors[19].ID)
}

func TestApplyDeltaFailedKeepsReason(t *testing.T) {
	rec := newRecord(7)
	rec.Status = types.StatusProcessing
	rec.Processed, rec.Success = 5, 5

	merged, err := ApplyDelta(rec, types.ProgressDelta{Status: types.StatusFailed, FailureReason: "store unavailable"}, 50, time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, merged.Status)
	assert.Equal(t, "store unavailable", merged.FailureReason)
	assert.Equal(t, 5, merged.Processed)
}
