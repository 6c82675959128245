package workqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned when work is submitted to a stopped queue.
var ErrStopped = errors.New("work queue stopped")

// Queue runs submitted jobs one at a time, in submission order, on a
// single goroutine. Push never blocks, so a running job may submit more
// work without deadlocking.
type Queue struct {
	mu      sync.Mutex
	jobs    []func()
	stopped bool

	signal   chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts a queue.
func New() *Queue {
	q := &Queue{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Push appends job. It reports false if the queue has been stopped.
func (q *Queue) Push(job func()) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until every job pushed before the call has run. It must not
// be called from inside a job.
func (q *Queue) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !q.Push(func() { close(reached) }) {
		return ErrStopped
	}
	select {
	case <-reached:
		return nil
	case <-q.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards pending jobs and ends the worker after the current job.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.jobs = nil
		q.mu.Unlock()
		close(q.stop)
	})
}

// Done is closed once the worker has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		jobs := q.jobs
		q.jobs = nil
		q.mu.Unlock()

		for _, job := range jobs {
			select {
			case <-q.stop:
				return
			default:
			}
			job()
		}
		if len(jobs) > 0 {
			continue
		}

		select {
		case <-q.signal:
		case <-q.stop:
			return
		}
	}
}
