package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the buffer has no room for another job.
var ErrQueueFull = errors.New("queue full")

// ErrQueueStopped is returned for jobs enqueued before Start or after Stop.
var ErrQueueStopped = errors.New("queue stopped")

// Job wraps one payload with its delivery bookkeeping.
type Job[T any] struct {
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a payload. A returned error schedules a retry.
type Handler[T any] func(ctx context.Context, payload T) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory dispatcher backed by goroutines. Stop drains what is
// already buffered before returning.
type Queue[T any] struct {
	name    string
	handler Handler[T]

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs     chan Job[T]
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	retries  sync.WaitGroup
	mu       sync.RWMutex
	started  bool
	stopping bool
}

// NewQueue builds a queue with the provided handler.
func NewQueue[T any](name string, handler Handler[T], cfg QueueConfig) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue[T]{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		jobs:       make(chan Job[T], cfg.BufferSize),
	}
}

// Start launches the workers. Later calls do nothing.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Debug("queue started", zap.Int("workers", q.workers))
}

// Stop refuses new jobs, lets the workers finish the buffered ones and waits
// for them. Pending retries are abandoned.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started || q.stopping {
		q.mu.Unlock()
		return
	}
	q.stopping = true
	q.cancel()
	q.mu.Unlock()

	q.retries.Wait()
	close(q.jobs)
	q.wg.Wait()
	q.logger.Debug("queue stopped")
}

// Enqueue adds a payload without blocking.
func (q *Queue[T]) Enqueue(payload T) error {
	return q.push(Job[T]{Payload: payload, Enqueued: time.Now().UTC()})
}

func (q *Queue[T]) push(job Job[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopping {
		return fmt.Errorf("%s: %w", q.name, ErrQueueStopped)
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		// Buffered jobs still run during Stop, on a context that is not cancelled.
		if err := q.handler(context.WithoutCancel(q.ctx), job.Payload); err != nil {
			q.retry(job, err)
		}
	}
}

func (q *Queue[T]) retry(job Job[T], err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job exceeded retries", zap.Int("attempts", job.Attempt), zap.Error(err))
		return
	}
	q.logger.Warn("job failed, retrying", zap.Int("attempt", job.Attempt), zap.Error(err))

	q.mu.RLock()
	if q.stopping {
		q.mu.RUnlock()
		return
	}
	q.retries.Add(1)
	q.mu.RUnlock()

	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.logger.Warn("retry abandoned on shutdown", zap.Error(err))
		case <-timer.C:
			if pushErr := q.push(job); pushErr != nil {
				q.logger.Error("failed to requeue job", zap.Error(pushErr))
			}
		}
	}()
}
