package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process worker pool.
type Local struct {
	workers int
	jobs    chan Job
	logger  *slog.Logger

	mu    sync.RWMutex
	tasks map[string]registration

	// pending counts jobs that are queued, running or waiting to be retried.
	pending sync.WaitGroup
	done    chan struct{}
}

// NewLocal creates a pool of workers reading from a buffered channel.
func NewLocal(workers, buffer int, logger *slog.Logger) *Local {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		workers: workers,
		jobs:    make(chan Job, buffer),
		logger:  logger.With("queue", "local"),
		tasks:   make(map[string]registration),
		done:    make(chan struct{}),
	}
}

// Register implements Queue.
func (l *Local) Register(task string, handler Handler, policy RetryPolicy) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tasks[task]; ok {
		return fmt.Errorf("task %s already registered", task)
	}
	l.tasks[task] = registration{handler: handler, policy: policy}
	return nil
}

func (l *Local) lookup(task string) (registration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.tasks[task]
	return r, ok
}

type workerKey struct{}

// Enqueue implements Queue. It blocks while the buffer is full, except when
// called from a running handler: the workers are the only readers of the
// buffer, so a follow-up job that does not fit is handed off instead.
func (l *Local) Enqueue(ctx context.Context, task string, payload interface{}) error {
	if _, ok := l.lookup(task); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	job := Job{ID: uuid.NewString(), Task: task, Payload: data, Attempt: 1}

	select {
	case <-l.done:
		return fmt.Errorf("queue stopped")
	default:
	}

	l.pending.Add(1)
	if ctx.Value(workerKey{}) == l {
		select {
		case l.jobs <- job:
		default:
			go l.send(job)
		}
		return nil
	}

	select {
	case l.jobs <- job:
		return nil
	case <-ctx.Done():
		l.pending.Done()
		return ctx.Err()
	case <-l.done:
		l.pending.Done()
		return fmt.Errorf("queue stopped")
	}
}

// send delivers a job that is already counted as pending.
func (l *Local) send(job Job) {
	select {
	case l.jobs <- job:
	case <-l.done:
		l.logger.Warn("queue stopped, dropping job", "task", job.Task, "job", job.ID)
		l.pending.Done()
	}
}

// Start runs the workers until ctx is cancelled.
func (l *Local) Start(ctx context.Context) {
	var workers sync.WaitGroup
	for i := 0; i < l.workers; i++ {
		workers.Add(1)
		go l.worker(ctx, &workers, i+1)
	}
	go func() {
		<-ctx.Done()
		close(l.done)
		workers.Wait()
		l.logger.Info("all workers stopped")
		l.discard()
	}()
}

// discard drops the jobs left in the buffer after the workers stopped, and
// any that still arrive from handed-off sends.
func (l *Local) discard() {
	for job := range l.jobs {
		l.logger.Warn("queue stopped, dropping job", "task", job.Task, "job", job.ID)
		l.pending.Done()
	}
}

// Wait blocks until every enqueued job finished, including retries.
func (l *Local) Wait() {
	l.pending.Wait()
}

func (l *Local) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	for {
		select {
		case job := <-l.jobs:
			l.execute(ctx, job, id)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Local) execute(ctx context.Context, job Job, workerID int) {
	log := l.logger.With("worker", workerID, "task", job.Task, "job", job.ID, "attempt", job.Attempt)

	reg, ok := l.lookup(job.Task)
	if !ok {
		log.Error("no handler for task")
		l.pending.Done()
		return
	}

	err := run(context.WithValue(ctx, workerKey{}, l), reg.handler, job.Payload)
	if err == nil {
		log.Debug("job finished")
		l.pending.Done()
		return
	}
	if !reg.policy.ShouldRetry(job.Attempt, err) {
		log.Error("job failed", "error", err)
		l.pending.Done()
		return
	}

	delay := reg.policy.Delay(job.Attempt)
	log.Warn("job failed, retrying", "error", err, "delay", delay)
	job.Attempt++
	time.AfterFunc(delay, func() { l.send(job) })
}
