package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsAllJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(ctx, 3, 16, nil)

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue(ctx, func(ctx context.Context) {
			done.Add(1)
		}))
	}
	require.NoError(t, q.Shutdown(ctx))
	assert.Equal(t, int32(20), done.Load())
}

func TestQueueRejectsNilJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(ctx, 1, 0, nil)
	defer func() { _ = q.Shutdown(ctx) }()

	assert.Error(t, q.Enqueue(ctx, nil))
}

func TestQueueEnqueueAfterShutdown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(ctx, 1, 0, nil)
	require.NoError(t, q.Shutdown(ctx))

	err := q.Enqueue(ctx, func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Shutdown stays idempotent.
	require.NoError(t, q.Shutdown(ctx))
}

func TestQueueEnqueueHonorsContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(ctx, 1, 0, nil)

	block := make(chan struct{})
	require.NoError(t, q.Enqueue(ctx, func(ctx context.Context) { <-block }))

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(cancelled, func(ctx context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	require.NoError(t, q.Shutdown(ctx))
}

func TestQueueShutdownTimesOutOnStuckJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(ctx, 1, 0, nil)

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, q.Enqueue(ctx, func(ctx context.Context) { <-block }))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Shutdown(short), context.DeadlineExceeded)
}
