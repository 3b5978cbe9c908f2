package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testJob(key string, ids ...int64) *types.BulkJob {
	return &types.BulkJob{
		Operation:   types.OperationRefresh,
		EntityType:  types.EntityMovie,
		IDs:         ids,
		ProgressKey: types.ProgressKey(key),
		EnqueuedAt:  time.Now(),
	}
}

func TestChannelQueueRoundTrip(t *testing.T) {
	q := NewChannelQueue(4, BackpressureConfig{WaitTimeout: time.Second}, quietLogger())
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("refresh_movie_1_aaaaaaaa", 1, 2, 3)))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, d.Job.IDs)
	assert.NoError(t, q.Ack(ctx, d))
}

func TestChannelQueueRejectsAboveThreshold(t *testing.T) {
	q := NewChannelQueue(4, BackpressureConfig{Enabled: true, RejectThreshold: 0.5, WaitTimeout: time.Second}, quietLogger())
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a")))
	require.NoError(t, q.Enqueue(ctx, testJob("b")))

	err := q.Enqueue(ctx, testJob("c"))
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.InDelta(t, 0.5, q.Load(), 0.001)
}

func TestChannelQueueTimesOutWhenFull(t *testing.T) {
	q := NewChannelQueue(1, BackpressureConfig{WaitTimeout: 20 * time.Millisecond}, quietLogger())
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a")))
	err := q.Enqueue(ctx, testJob("b"))
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestChannelQueueDequeueHonorsContext(t *testing.T) {
	q := NewChannelQueue(1, BackpressureConfig{}, quietLogger())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelQueueClosed(t *testing.T) {
	q := NewChannelQueue(1, BackpressureConfig{}, quietLogger())
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), testJob("a")), ErrClosed)
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisQueueAckAndRecover(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	key := "test:bulk:queue:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(ctx, key, key+":processing") })

	q := NewRedisQueue(client, key, 10, BackpressureConfig{}, quietLogger())
	q.blockTimeout = 100 * time.Millisecond

	require.NoError(t, q.Enqueue(ctx, testJob("first", 1)))
	require.NoError(t, q.Enqueue(ctx, testJob("second", 2)))

	d1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ProgressKey("first"), d1.Job.ProgressKey)
	require.NoError(t, q.Ack(ctx, d1))

	// second is delivered but the worker dies before acking
	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ProgressKey("second"), d2.Job.ProgressKey)

	moved, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ProgressKey("second"), again.Job.ProgressKey)
	require.NoError(t, q.Ack(ctx, again))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
