package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Job is the smallest useful unit. Extend as needed later (retry, trace, etc).
type Job func(ctx context.Context)

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Shutdown stops intake and waits for in-flight jobs, or returns early
	// when ctx expires.
	Shutdown(ctx context.Context) error
}

// ErrQueueClosed is returned by Enqueue once Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shut down")

type workerQueue struct {
	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// NewQueue starts workers goroutines draining a buffered job channel. Workers
// run until Shutdown closes the channel.
func NewQueue(ctx context.Context, workers, buffer int, logger *slog.Logger) Queue {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &workerQueue{
		jobs:   make(chan Job, buffer),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				job(ctx)
			}
		}()
	}
	logger.Debug("async.queue.started", "workers", workers, "buffer", buffer)
	return q
}

func (q *workerQueue) Enqueue(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	// The mutex covers the send so Shutdown cannot close the channel under a
	// blocked sender.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *workerQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
