package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP dispatches tasks through RabbitMQ: one durable queue per task,
// persistent JSON messages, retries republished with an incremented attempt.
type AMQP struct {
	conn   *amqp.Connection
	prefix string
	logger *slog.Logger

	pubMu   sync.Mutex
	pub     *amqp.Channel
	publish func(ctx context.Context, queue string, job Job) error

	mu    sync.RWMutex
	tasks map[string]registration
}

// DialAMQP connects to a broker. Queue names are "<prefix>.<task>".
func DialAMQP(url, prefix string, logger *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	q := newAMQP(prefix, logger)
	q.conn = conn
	q.pub = pub
	q.publish = q.publishToChannel
	return q, nil
}

func newAMQP(prefix string, logger *slog.Logger) *AMQP {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQP{
		prefix: prefix,
		logger: logger.With("queue", "amqp"),
		tasks:  make(map[string]registration),
	}
}

func (q *AMQP) queueName(task string) string {
	if q.prefix == "" {
		return task
	}
	return q.prefix + "." + task
}

// Register implements Queue and declares the task's durable queue.
func (q *AMQP) Register(task string, handler Handler, policy RetryPolicy) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[task]; ok {
		return fmt.Errorf("task %s already registered", task)
	}
	if q.pub != nil {
		q.pubMu.Lock()
		_, err := q.pub.QueueDeclare(q.queueName(task), true, false, false, false, nil)
		q.pubMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
	}
	q.tasks[task] = registration{handler: handler, policy: policy}
	return nil
}

func (q *AMQP) lookup(task string) (registration, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	r, ok := q.tasks[task]
	return r, ok
}

// Enqueue implements Queue.
func (q *AMQP) Enqueue(ctx context.Context, task string, payload interface{}) error {
	if _, ok := q.lookup(task); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.queueName(task), Job{ID: uuid.NewString(), Task: task, Payload: data, Attempt: 1})
}

func (q *AMQP) publishToChannel(ctx context.Context, queue string, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err = q.pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", job.Task, err)
	}
	return nil
}

// Consume processes every registered task until ctx is cancelled. prefetch
// bounds the unacknowledged deliveries per task.
func (q *AMQP) Consume(ctx context.Context, prefetch int) error {
	q.mu.RLock()
	tasks := make([]string, 0, len(q.tasks))
	for task := range q.tasks {
		tasks = append(tasks, task)
	}
	q.mu.RUnlock()

	var wg sync.WaitGroup
	for _, task := range tasks {
		ch, err := q.conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", err)
		}
		defer ch.Close()
		if err = ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
		deliveries, err := ch.Consume(q.queueName(task), "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", task, err)
		}
		q.logger.Info("consuming", "task", task, "prefetch", prefetch)

		for i := 0; i < prefetch; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case delivery, ok := <-deliveries:
						if !ok {
							return
						}
						q.handle(ctx, delivery)
					}
				}
			}()
		}
	}
	wg.Wait()
	return ctx.Err()
}

// handle runs one delivery. Successes are acked; retryable failures are
// republished after the policy delay and acked; other failures are nacked
// without requeue so a dead-letter exchange can pick them up.
func (q *AMQP) handle(ctx context.Context, delivery amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		q.logger.Error("undecodable message", "error", err)
		delivery.Nack(false, false)
		return
	}
	log := q.logger.With("task", job.Task, "job", job.ID, "attempt", job.Attempt)

	reg, ok := q.lookup(job.Task)
	if !ok {
		log.Error("no handler for task")
		delivery.Nack(false, false)
		return
	}

	err := run(ctx, reg.handler, job.Payload)
	if err == nil {
		delivery.Ack(false)
		return
	}
	if !reg.policy.ShouldRetry(job.Attempt, err) {
		log.Error("job failed", "error", err)
		delivery.Nack(false, false)
		return
	}

	delay := reg.policy.Delay(job.Attempt)
	log.Warn("job failed, retrying", "error", err, "delay", delay)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		delivery.Nack(false, true)
		return
	}
	job.Attempt++
	if err = q.publish(ctx, q.queueName(job.Task), job); err != nil {
		log.Error("could not republish job", "error", err)
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
}

// Close closes the broker connection.
func (q *AMQP) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
