package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Lane separates latency-sensitive work from background work so each gets its own workers.
type Lane string

const (
	LaneDefault Lane = "default"
	LaneLow     Lane = "low"
)

// Handler executes one attempt of a task.
type Handler func(ctx context.Context, t *Task) error

// FailureHook is called once when a task stops being retried.
type FailureHook func(ctx context.Context, t *Task, err error)

// TaskClass describes how tasks of one kind are executed and retried.
type TaskClass struct {
	Name        string
	MaxAttempts int
	// Backoff[i] is the wait before attempt i+2; the last entry repeats.
	Backoff []time.Duration
	Delay   time.Duration
	Lane    Lane
	Timeout time.Duration
	Handler Handler

	OnPermanentFailure FailureHook
	OnDrop             FailureHook
}

// Task is one queued unit of work. Attempt is 1-based.
type Task struct {
	ID         string          `json:"id"`
	Class      string          `json:"class"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	RunAt      time.Time       `json:"run_at"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Decode unmarshals the task payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return Drop(fmt.Errorf("task %s has an empty payload", t.ID))
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return Drop(fmt.Errorf("decode %s payload: %w", t.Class, err))
	}
	return nil
}

// Drop marks an error as final: the task is not retried.
//
//	return scheduler.Drop(fmt.Errorf("content %s not found", id))
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return dropError{err: err}
}

// IsDrop reports whether err was wrapped with Drop.
func IsDrop(err error) bool {
	var d dropError
	return errors.As(err, &d)
}

type dropError struct{ err error }

func (e dropError) Error() string { return fmt.Sprintf("dropped: %v", e.err) }
func (e dropError) Unwrap() error { return e.err }

// RetryAfterError is implemented by errors that carry a server-suggested delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// retryDelay picks the backoff entry for the attempt that just failed and
// stretches it to any retry hint carried by err.
func retryDelay(backoff []time.Duration, attempt int, err error) time.Duration {
	var d time.Duration
	if len(backoff) > 0 {
		idx := attempt - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		d = backoff[idx]
	}
	var ra RetryAfterError
	if errors.As(err, &ra) && ra.RetryAfter() > d {
		d = ra.RetryAfter()
	}
	return d
}
