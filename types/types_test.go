package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		total     int
		expected  int
	}{
		{"zero total", 0, 0, 0},
		{"nothing processed", 0, 7, 0},
		{"first batch of seven", 5, 7, 71},
		{"rounds half up", 1, 8, 13},
		{"one third", 1, 3, 33},
		{"two thirds", 2, 3, 67},
		{"done", 7, 7, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Percentage(tt.processed, tt.total))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusQueued.CanTransitionTo(StatusProcessing))
	assert.True(t, StatusQueued.CanTransitionTo(StatusQueued))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusProcessing))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusFailed))
	assert.True(t, StatusQueued.CanTransitionTo(StatusFailed))

	assert.False(t, StatusProcessing.CanTransitionTo(StatusQueued))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusProcessing))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusFailed.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusQueued.CanTransitionTo(Status("paused")))

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}

func TestParseOperationAndEntityType(t *testing.T) {
	op, err := ParseOperation(" Refresh ")
	require.NoError(t, err)
	assert.Equal(t, OperationRefresh, op)

	_, err = ParseOperation("delete")
	assert.Error(t, err)

	et, err := ParseEntityType("SERIES")
	require.NoError(t, err)
	assert.Equal(t, EntitySeries, et)

	_, err = ParseEntityType("episode")
	assert.Error(t, err)
}

func TestNewProgressKey(t *testing.T) {
	now := time.Unix(1700000000, 0)

	k1 := NewProgressKey(OperationRefresh, EntityMovie, now)
	k2 := NewProgressKey(OperationRefresh, EntityMovie, now)

	assert.True(t, strings.HasPrefix(k1.String(), "refresh_movie_1700000000_"))
	assert.True(t, k1.Valid())
	assert.NotEqual(t, k1, k2)

	assert.False(t, ProgressKey("").Valid())
	assert.False(t, ProgressKey("refresh_movie_abc").Valid())
	assert.False(t, ProgressKey("../../etc/passwd").Valid())
	assert.False(t, ProgressKey("purge_movie_1700000000_1a2b3c4d").Valid())
	assert.False(t, ProgressKey("refresh_album_1700000000_1a2b3c4d").Valid())
}

func TestProgressKeyValidForEveryOperation(t *testing.T) {
	now := time.Unix(1700000000, 0)
	for _, op := range Operations() {
		for _, et := range EntityTypes() {
			key := NewProgressKey(op, et, now)
			assert.True(t, key.Valid(), key.String())
		}
	}
}

func TestNewProgressRecord(t *testing.T) {
	now := time.Now()
	rec := NewProgressRecord("k", OperationImport, EntitySeries, 7, 5, now)

	assert.Equal(t, StatusQueued, rec.Status)
	assert.Equal(t, 7, rec.Total)
	assert.Equal(t, 0, rec.Processed)
	assert.Equal(t, 2, rec.TotalBatches)
	assert.NotNil(t, rec.Errors)
	assert.Equal(t, now, rec.QueuedAt)
}

func TestSnapshotStaleness(t *testing.T) {
	now := time.Now()
	rec := NewProgressRecord("k", OperationRefresh, EntityMovie, 10, 5, now.Add(-10*time.Minute))
	rec.Status = StatusProcessing
	rec.Processed = 5
	rec.Success = 5

	snap := rec.Snapshot(now, 2*time.Minute)
	assert.True(t, snap.Stale)
	assert.Equal(t, 50, snap.Percentage)

	assert.False(t, rec.Snapshot(now, 0).Stale, "zero threshold disables staleness")

	rec.Status = StatusCompleted
	assert.False(t, rec.Snapshot(now, 2*time.Minute).Stale, "terminal records are never stale")
}

func TestSnapshotQueuedIsNeverStale(t *testing.T) {
	now := time.Now()
	rec := NewProgressRecord("k", OperationRefresh, EntityMovie, 1000, 5, now.Add(-3*time.Minute))

	snap := rec.Snapshot(now, 2*time.Minute)
	assert.Equal(t, StatusQueued, snap.Status)
	assert.False(t, snap.Stale)
}

func TestTotalBatches(t *testing.T) {
	assert.Equal(t, 0, TotalBatches(0, 5))
	assert.Equal(t, 1, TotalBatches(5, 5))
	assert.Equal(t, 2, TotalBatches(7, 5))
	assert.Equal(t, 0, TotalBatches(7, 0))
}
