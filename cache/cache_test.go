package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) *InMemoryStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := NewInMemoryStore(ttl, 50, logger)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInMemoryStoreCreateGet(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()
	rec := newRecord(7)

	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Total)
	assert.Equal(t, 0, got.Processed)
	assert.Equal(t, types.StatusQueued, got.Status)

	err = store.Create(ctx, rec)
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestInMemoryStoreGetUnknownKey(t *testing.T) {
	store := newTestStore(t, time.Hour)

	got, err := store.Get(context.Background(), "refresh_movie_1_deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}

func TestInMemoryStoreExpiry(t *testing.T) {
	store := newTestStore(t, time.Minute)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Create(ctx, newRecord(3)))

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := store.Get(ctx, newRecord(3).Key)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Merge(ctx, newRecord(3).Key, types.ProgressDelta{Processed: 1, Success: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, store.cleanup())
	assert.Equal(t, 0, store.Len())
}

func TestInMemoryStoreMergeReturnsCopy(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()
	rec := newRecord(7)
	require.NoError(t, store.Create(ctx, rec))

	merged, err := store.Merge(ctx, rec.Key, types.ProgressDelta{
		Processed: 5, Success: 5, CurrentBatch: 1, Status: types.StatusProcessing,
	})
	require.NoError(t, err)
	merged.Processed = 999

	got, err := store.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Processed)
	assert.Equal(t, 1, got.CurrentBatch)
}

func TestInMemoryStoreConcurrentMergesKeepInvariant(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()
	rec := newRecord(200)
	require.NoError(t, store.Create(ctx, rec))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := 0
	var mu sync.Mutex

	// reader checks the invariant while writers merge
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			got, err := store.Get(ctx, rec.Key)
			if err == nil && got.Success+got.Failed != got.Processed {
				mu.Lock()
				violations++
				mu.Unlock()
			}
		}
	}()

	var writers sync.WaitGroup
	for i := 0; i < 40; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			// each writer claims the next free batch, retrying when another writer got it first
			for {
				cur, err := store.Get(ctx, rec.Key)
				if !assert.NoError(t, err) {
					return
				}
				delta := types.ProgressDelta{Processed: 5, Success: 3, Failed: 2, CurrentBatch: cur.CurrentBatch + 1}
				_, err = store.Merge(ctx, rec.Key, delta)
				if errors.Is(err, ErrBatchApplied) {
					continue
				}
				assert.NoError(t, err)
				return
			}
		}()
	}
	writers.Wait()
	close(stop)
	wg.Wait()

	got, err := store.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, 200, got.Processed)
	assert.Equal(t, 120, got.Success)
	assert.Equal(t, 80, got.Failed)
	assert.Equal(t, 40, got.CurrentBatch)
	assert.Zero(t, violations)
}

func TestInMemoryStoreDelete(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()
	rec := newRecord(1)
	require.NoError(t, store.Create(ctx, rec))

	require.NoError(t, store.Delete(ctx, rec.Key))
	_, err := store.Get(ctx, rec.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}
