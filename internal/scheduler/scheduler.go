// Package scheduler bounds concurrent resolution work. A fixed worker pool
// drains a FIFO queue of bounded depth; once the queue is full new
// submissions are rejected immediately instead of blocking the caller.
package scheduler

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/amaumene/godebrid/pkg/logger"
)

var (
	// ErrQueueFull is returned when the wait queue is at capacity.
	ErrQueueFull = errors.New("scheduler queue full")
	// ErrStopped is returned when submitting to a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")
)

// Task is a unit of asynchronous work admitted by the scheduler.
type Task struct {
	ID   string
	fn   func() (interface{}, error)
	done chan struct{}

	result interface{}
	err    error
}

// Wait blocks until the task has run and returns its result. Abandoning a
// Wait does not cancel the task; it still runs and its result stands.
func (t *Task) Wait() (interface{}, error) {
	<-t.done
	return t.result, t.err
}

// Done exposes the completion channel for select-based waits.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

type Scheduler struct {
	queue  chan *Task
	logger logger.Logger

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// New starts maxConcurrent workers over a queue of queueSize waiting tasks.
func New(maxConcurrent, queueSize int, log logger.Logger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	s := &Scheduler{
		queue:   make(chan *Task, queueSize),
		logger:  log,
		stopped: make(chan struct{}),
	}

	s.wg.Add(maxConcurrent)
	for i := 0; i < maxConcurrent; i++ {
		go s.worker()
	}
	return s
}

// Submit queues fn for execution. It never blocks: a full queue returns
// ErrQueueFull right away.
func (s *Scheduler) Submit(fn func() (interface{}, error)) (*Task, error) {
	select {
	case <-s.stopped:
		return nil, ErrStopped
	default:
	}

	task := &Task{
		ID:   uuid.NewString(),
		fn:   fn,
		done: make(chan struct{}),
	}

	select {
	case s.queue <- task:
		return task, nil
	default:
		s.logger.Warnf("[Scheduler] queue full, rejecting task %s", task.ID)
		return nil, ErrQueueFull
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		// Stop wins over pending work so Stop can drain the queue itself.
		select {
		case <-s.stopped:
			return
		default:
		}

		select {
		case <-s.stopped:
			return
		case task := <-s.queue:
			s.run(task)
		}
	}
}

// run executes one task; the done channel closes on every exit path.
func (s *Scheduler) run(task *Task) {
	defer close(task.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("[Scheduler] task %s panicked: %v", task.ID, r)
			task.err = errors.New("task panicked")
		}
	}()

	task.result, task.err = task.fn()
}

// Stop prevents new submissions and waits for running tasks to finish.
// Queued tasks that never started complete with ErrStopped so their waiters
// unblock.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
	s.wg.Wait()

	for {
		select {
		case task := <-s.queue:
			task.err = ErrStopped
			close(task.done)
		default:
			return
		}
	}
}
