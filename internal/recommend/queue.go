// Package recommend generates personalised recommendations after check-ins.
// Jobs run on a bounded in-process queue so check-in requests return immediately.
package recommend

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Enqueue when no buffer slot is free.
	ErrQueueFull = errors.New("recommendation queue is full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("recommendation queue is closed")
)

// Job asks for recommendations for a user who checked into a place.
type Job struct {
	PlaceID   string
	UserEmail string
}

// Handler processes one job.
type Handler func(ctx context.Context, job Job) error

// Queue runs jobs on a fixed number of workers.
type Queue struct {
	jobs    chan Job
	handler Handler
	workers int
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue holding up to size pending jobs. Call Start to run workers.
func NewQueue(size, workers int, handler Handler, logger *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		jobs:    make(chan Job, size),
		handler: handler,
		workers: workers,
		logger:  logger,
		cancel:  func() {},
	}
}

// Start launches the workers. Jobs run with a context derived from ctx.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		if ctx.Err() != nil {
			q.logger.Debug("dropping recommendation job", zap.String("place_id", job.PlaceID))
			continue
		}
		if err := q.handler(ctx, job); err != nil {
			q.logger.Warn("recommendation job failed",
				zap.String("place_id", job.PlaceID),
				zap.String("user", job.UserEmail),
				zap.Error(err))
		}
	}
}

// Enqueue adds job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for pending ones to finish.
// If ctx ends first, running jobs are cancelled and the rest dropped.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	cancel := q.cancel
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}
