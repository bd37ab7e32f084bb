package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediaconv/internal/common"
)

// Queue delivery failures, surfaced to the caller of Enqueue.
var (
	ErrQueueFull       = errors.New("queue is full")
	ErrQueueNotStarted = errors.New("queue not started")
)

// WorkItem is one delivery of a job to the worker pool. Attempt is
// 1-based and incremented by the queue on each redelivery.
type WorkItem struct {
	JobID   string
	Attempt int
}

// Processor defines how to process a WorkItem.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Queue is an in-memory bounded queue of work items with a worker pool.
// Each item is delivered to exactly one worker at a time; failures the
// retry policy classifies as transient are redelivered after an
// exponential backoff.
type Queue struct {
	log        *slog.Logger
	ch         chan WorkItem
	workers    int
	policy     RetryPolicy
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	started    bool
	mu         sync.Mutex
}

// NewQueue creates a new Queue with the given capacity, worker count and
// retry policy.
func NewQueue(logger *slog.Logger, capacity, workers int, policy RetryPolicy) *Queue {
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultWorkerCount
	}
	return &Queue{
		log:     logger,
		ch:      make(chan WorkItem, capacity),
		workers: workers,
		policy:  policy,
	}
}

// Start launches worker goroutines that consume items and process them
// with the provided Processor.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			return
		case item := <-q.ch:
			jobLog := log.With("job_id", item.JobID, "attempt", item.Attempt)
			start := time.Now()
			err := p.Process(ctx, item)
			if err == nil {
				jobLog.Info("job processed", "duration", time.Since(start))
				continue
			}
			if q.policy.ShouldRetry(item.Attempt, err) {
				delay := q.policy.Backoff(item.Attempt)
				jobLog.Warn("job attempt failed, retrying", "err", err, "backoff", delay)
				q.scheduleRetry(ctx, item, delay)
				continue
			}
			jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
		}
	}
}

// scheduleRetry redelivers item after delay with an incremented attempt
// counter. The backoff timer runs off-worker so the pool keeps draining.
func (q *Queue) scheduleRetry(ctx context.Context, item WorkItem, delay time.Duration) {
	next := WorkItem{JobID: item.JobID, Attempt: item.Attempt + 1}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case q.ch <- next:
			case <-ctx.Done():
			}
		}
	}()
}

// Enqueue adds a first-attempt item without blocking, failing with
// ErrQueueFull when capacity is exhausted.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return ErrQueueNotStarted
	}
	if item.Attempt <= 0 {
		item.Attempt = 1
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops the workers and waits for in-flight items up to the
// provided deadline.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
			return
		case <-timer.C:
			q.log.Warn("queue shutdown deadline reached; workers may still be running")
		}
	})
}
