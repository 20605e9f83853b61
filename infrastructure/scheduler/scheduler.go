package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"content-distributor/domain/errs"
	"content-distributor/infrastructure/logger"

	"github.com/google/uuid"
)

// Outcome is the result of a single task attempt as reported to the Observer.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetried   Outcome = "retried"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

// Observer receives one call per finished attempt.
type Observer interface {
	TaskFinished(class string, outcome Outcome)
}

type Config struct {
	Workers      map[Lane]int
	PollInterval time.Duration
}

type Scheduler struct {
	queue    Queue
	cfg      Config
	now      func() time.Time
	observer Observer

	mu      sync.RWMutex
	classes map[string]TaskClass
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

func New(queue Queue, cfg Config, opts ...Option) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if len(cfg.Workers) == 0 {
		cfg.Workers = map[Lane]int{LaneDefault: 4, LaneLow: 1}
	}
	s := &Scheduler{
		queue:   queue,
		cfg:     cfg,
		now:     time.Now,
		classes: make(map[string]TaskClass),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Register(class TaskClass) error {
	if class.Name == "" {
		return errors.New("scheduler: task class needs a name")
	}
	if class.Handler == nil {
		return fmt.Errorf("scheduler: task class %s has no handler", class.Name)
	}
	if class.MaxAttempts <= 0 {
		class.MaxAttempts = 1
	}
	if class.Lane == "" {
		class.Lane = LaneDefault
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.classes[class.Name]; dup {
		return fmt.Errorf("scheduler: task class %s already registered", class.Name)
	}
	s.classes[class.Name] = class
	return nil
}

func (s *Scheduler) class(name string) (TaskClass, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[name]
	return c, ok
}

type enqueueOptions struct {
	delay  *time.Duration
	taskID string
}

type EnqueueOption func(*enqueueOptions)

// WithDelay overrides the class start delay.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = &d }
}

func WithTaskID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.taskID = id }
}

// Enqueue stores a new task for class and returns its id. It performs no work itself.
func (s *Scheduler) Enqueue(ctx context.Context, className string, payload any, opts ...EnqueueOption) (string, error) {
	class, ok := s.class(className)
	if !ok {
		return "", fmt.Errorf("scheduler: unknown task class %s", className)
	}
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", className, err)
	}
	delay := class.Delay
	if o.delay != nil {
		delay = *o.delay
	}
	id := o.taskID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	t := &Task{
		ID:         id,
		Class:      className,
		Payload:    body,
		Attempt:    1,
		RunAt:      now.Add(delay),
		EnqueuedAt: now,
	}
	if err := s.queue.Push(ctx, class.Lane, t); err != nil {
		return "", fmt.Errorf("push %s task: %w", className, err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"task_id": id,
		"class":   className,
		"lane":    class.Lane,
		"delay":   delay.String(),
	}).Debug("task enqueued")
	return id, nil
}

// Run starts the configured workers for every lane and blocks until ctx is done
// and in-flight attempts have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for lane, n := range s.cfg.Workers {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(lane Lane) {
				defer wg.Done()
				s.worker(ctx, lane)
			}(lane)
		}
	}
	logger.GetLogger().WithField("workers", s.cfg.Workers).Info("Task scheduler started")
	wg.Wait()
	logger.GetLogger().Info("Task scheduler stopped")
	return nil
}

func (s *Scheduler) worker(ctx context.Context, lane Lane) {
	for {
		if ctx.Err() != nil {
			return
		}
		ran, err := s.runNext(ctx, lane)
		if err != nil {
			logger.GetLogger().WithField("lane", lane).WithField("error", err).Error("pop task failed")
		}
		if ran {
			continue
		}
		t := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// RunDue executes every task on lane that is due at the scheduler clock and
// returns how many attempts ran. Retries scheduled in the future are left queued.
func (s *Scheduler) RunDue(ctx context.Context, lane Lane) (int, error) {
	n := 0
	for {
		ran, err := s.runNext(ctx, lane)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

func (s *Scheduler) runNext(ctx context.Context, lane Lane) (bool, error) {
	t, err := s.queue.Pop(ctx, lane, s.now())
	if err != nil || t == nil {
		return false, err
	}
	s.execute(ctx, t)
	return true, nil
}

func (s *Scheduler) execute(ctx context.Context, t *Task) {
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"task_id": t.ID,
		"class":   t.Class,
		"attempt": t.Attempt,
	})
	class, ok := s.class(t.Class)
	if !ok {
		log.Error("no handler registered for task class; discarding")
		return
	}

	err := s.invoke(ctx, class, t)
	if err == nil {
		log.Debug("task succeeded")
		s.report(class.Name, OutcomeSucceeded)
		return
	}
	t.LastError = err.Error()

	if IsDrop(err) || errs.IsNonRetryable(err) {
		log.WithField("error", err).Warn("task dropped")
		if class.OnDrop != nil {
			class.OnDrop(ctx, t, err)
		}
		s.report(class.Name, OutcomeDropped)
		return
	}

	if t.Attempt >= class.MaxAttempts {
		log.WithField("error", err).Error("task failed permanently")
		if class.OnPermanentFailure != nil {
			class.OnPermanentFailure(ctx, t, err)
		}
		s.report(class.Name, OutcomeFailed)
		return
	}

	delay := retryDelay(class.Backoff, t.Attempt, err)
	next := *t
	next.Attempt = t.Attempt + 1
	next.RunAt = s.now().Add(delay)
	if perr := s.queue.Push(ctx, class.Lane, &next); perr != nil {
		log.WithField("error", perr).Error("requeue failed")
		if class.OnPermanentFailure != nil {
			class.OnPermanentFailure(ctx, t, err)
		}
		s.report(class.Name, OutcomeFailed)
		return
	}
	log.WithField("error", err).WithField("retry_in", delay.String()).Warn("task attempt failed; retry scheduled")
	s.report(class.Name, OutcomeRetried)
}

// invoke runs one attempt under the class timeout and turns a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, class TaskClass, t *Task) (err error) {
	runCtx := ctx
	if class.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, class.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"task_id": t.ID,
				"class":   t.Class,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("task panic recovered")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return class.Handler(runCtx, t)
}

func (s *Scheduler) report(class string, outcome Outcome) {
	if s.observer != nil {
		s.observer.TaskFinished(class, outcome)
	}
}
