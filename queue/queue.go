// Package queue dispatches named tasks to handlers with a retry policy
// attached at registration time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTask is returned when enqueuing or running an unregistered task.
var ErrUnknownTask = errors.New("unknown task")

// Handler runs one task invocation with its JSON payload.
type Handler func(ctx context.Context, payload []byte) error

// RetryPolicy controls how a failing task is retried.
type RetryPolicy struct {
	// MaxAttempts includes the first run; values below 1 mean a single attempt.
	MaxAttempts int
	Backoff     time.Duration
	// Exponential doubles Backoff on every attempt, up to MaxBackoff.
	Exponential bool
	MaxBackoff  time.Duration
}

// Delay is the wait before the given retry (attempt 1 is the first retry).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Backoff
	if p.Exponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
				break
			}
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// ShouldRetry reports whether a job that failed on its attempt-th run goes again.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return err != nil && !IsPermanent(err) && attempt < p.MaxAttempts
}

// Queue is the task queue contract shared by the in-process pool and RabbitMQ.
type Queue interface {
	Register(task string, handler Handler, policy RetryPolicy) error
	Enqueue(ctx context.Context, task string, payload interface{}) error
}

// Job is one queued invocation.
type Job struct {
	ID      string          `json:"id"`
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks an error that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type registration struct {
	handler Handler
	policy  RetryPolicy
}

func encode(payload interface{}) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return data, nil
}

// run executes a handler, turning a panic into an error.
func run(ctx context.Context, handler Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task: %v", r)
		}
	}()
	return handler(ctx, payload)
}
