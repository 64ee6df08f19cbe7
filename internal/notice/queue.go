package notice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the task buffer used when none is configured
const DefaultQueueSize = 16

var (
	// ErrQueueFull is returned when the task buffer has no free slot
	ErrQueueFull = errors.New("notice queue is full")
	// ErrQueueClosed is returned after Close
	ErrQueueClosed = errors.New("notice queue is closed")
)

// Task hands an uploaded notice to a pipeline worker
type Task struct {
	NoticeID string
	JobID    string
	OwnerID  string
	Content  []byte
}

// Handler processes one task
type Handler func(ctx context.Context, t Task) error

// Queue is an in-process task queue served by a fixed set of workers.
// Enqueue never blocks; Close stops intake, drains buffered tasks and waits.
type Queue struct {
	tasks   chan Task
	handler Handler
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue creates a queue that buffers up to size tasks
func NewQueue(size int, handler Handler, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{tasks: make(chan Task, size), handler: handler, logger: logger}
}

// Start launches workers. Tasks run with ctx stripped of cancellation so a
// job that has started always reaches a terminal state.
func (q *Queue) Start(ctx context.Context, workers int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	if workers <= 0 {
		workers = 1
	}

	taskCtx := context.WithoutCancel(ctx)
	for range workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for t := range q.tasks {
				if err := q.handler(taskCtx, t); err != nil {
					q.logger.Error("notice job failed", "notice_id", t.NoticeID, "job_id", t.JobID, "error", err)
				}
			}
		}()
	}
}

// Enqueue hands t to a worker without waiting for it to run
func (q *Queue) Enqueue(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		q.logger.Debug("notice job queued", "notice_id", t.NoticeID, "job_id", t.JobID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for buffered ones to finish.
// Tasks still buffered when no worker was ever started are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}

// Len reports the number of buffered tasks
func (q *Queue) Len() int {
	return len(q.tasks)
}
