package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"content-distributor/domain/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) TaskFinished(_ string, outcome Outcome) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func newTestScheduler() (*Scheduler, *fakeClock, *recordingObserver) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	obs := &recordingObserver{}
	s := New(NewMemoryQueue(), Config{PollInterval: 10 * time.Millisecond}, WithClock(clock.Now), WithObserver(obs))
	return s, clock, obs
}

func TestRegisterValidates(t *testing.T) {
	s, _, _ := newTestScheduler()
	assert.Error(t, s.Register(TaskClass{Name: "x"}))
	assert.Error(t, s.Register(TaskClass{Handler: func(context.Context, *Task) error { return nil }}))
	require.NoError(t, s.Register(TaskClass{Name: "x", Handler: func(context.Context, *Task) error { return nil }}))
	assert.Error(t, s.Register(TaskClass{Name: "x", Handler: func(context.Context, *Task) error { return nil }}))
}

func TestEnqueueUnknownClass(t *testing.T) {
	s, _, _ := newTestScheduler()
	_, err := s.Enqueue(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestEnqueueHonoursDelay(t *testing.T) {
	s, clock, _ := newTestScheduler()
	var runs int
	require.NoError(t, s.Register(TaskClass{Name: "publish", Delay: time.Minute, Handler: func(context.Context, *Task) error {
		runs++
		return nil
	}}))

	_, err := s.Enqueue(context.Background(), "publish", map[string]string{"a": "b"}, WithDelay(15*time.Second))
	require.NoError(t, err)

	n, err := s.RunDue(context.Background(), LaneDefault)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(15 * time.Second)
	n, err = s.RunDue(context.Background(), LaneDefault)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, runs)
}

func TestRetryBoundFollowsBackoffSchedule(t *testing.T) {
	s, clock, obs := newTestScheduler()
	var attempts []int
	var permanent int
	require.NoError(t, s.Register(TaskClass{
		Name:        "publish",
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Minute, 5 * time.Minute},
		Handler: func(_ context.Context, task *Task) error {
			attempts = append(attempts, task.Attempt)
			return &errs.TransientNetworkError{Platform: "facebook", StatusCode: 503}
		},
		OnPermanentFailure: func(context.Context, *Task, error) { permanent++ },
	}))
	ctx := context.Background()
	_, err := s.Enqueue(ctx, "publish", struct{}{})
	require.NoError(t, err)

	n, _ := s.RunDue(ctx, LaneDefault)
	assert.Equal(t, 1, n)

	clock.Advance(59 * time.Second)
	n, _ = s.RunDue(ctx, LaneDefault)
	assert.Zero(t, n, "first retry must wait the first backoff entry")

	clock.Advance(time.Second)
	n, _ = s.RunDue(ctx, LaneDefault)
	assert.Equal(t, 1, n)

	clock.Advance(4 * time.Minute)
	n, _ = s.RunDue(ctx, LaneDefault)
	assert.Zero(t, n)
	clock.Advance(time.Minute)
	n, _ = s.RunDue(ctx, LaneDefault)
	assert.Equal(t, 1, n)

	clock.Advance(time.Hour)
	n, _ = s.RunDue(ctx, LaneDefault)
	assert.Zero(t, n)

	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, 1, permanent)
	assert.Equal(t, []Outcome{OutcomeRetried, OutcomeRetried, OutcomeFailed}, obs.outcomes)
}

func TestNonRetryableErrorsAreDropped(t *testing.T) {
	cases := map[string]error{
		"token expired": &errs.TokenExpiredError{Platform: "linkedin", AccountID: 7},
		"explicit drop": Drop(errors.New("content not found")),
	}
	for name, handlerErr := range cases {
		t.Run(name, func(t *testing.T) {
			s, clock, obs := newTestScheduler()
			var runs, dropped, permanent int
			require.NoError(t, s.Register(TaskClass{
				Name:               "publish",
				MaxAttempts:        3,
				Backoff:            []time.Duration{time.Second},
				Handler:            func(context.Context, *Task) error { runs++; return handlerErr },
				OnDrop:             func(context.Context, *Task, error) { dropped++ },
				OnPermanentFailure: func(context.Context, *Task, error) { permanent++ },
			}))
			_, err := s.Enqueue(context.Background(), "publish", struct{}{})
			require.NoError(t, err)

			_, _ = s.RunDue(context.Background(), LaneDefault)
			clock.Advance(time.Hour)
			_, _ = s.RunDue(context.Background(), LaneDefault)

			assert.Equal(t, 1, runs)
			assert.Equal(t, 1, dropped)
			assert.Zero(t, permanent)
			assert.Equal(t, []Outcome{OutcomeDropped}, obs.outcomes)
		})
	}
}

func TestRetryAfterHintStretchesBackoff(t *testing.T) {
	s, clock, _ := newTestScheduler()
	runs := 0
	require.NoError(t, s.Register(TaskClass{
		Name:        "publish",
		MaxAttempts: 2,
		Backoff:     []time.Duration{time.Second},
		Handler: func(context.Context, *Task) error {
			runs++
			return &errs.PlatformRejectedContentError{Platform: "twitter", StatusCode: 429, RetryAfterHint: time.Minute}
		},
	}))
	_, err := s.Enqueue(context.Background(), "publish", struct{}{})
	require.NoError(t, err)

	_, _ = s.RunDue(context.Background(), LaneDefault)
	clock.Advance(30 * time.Second)
	_, _ = s.RunDue(context.Background(), LaneDefault)
	assert.Equal(t, 1, runs)

	clock.Advance(30 * time.Second)
	_, _ = s.RunDue(context.Background(), LaneDefault)
	assert.Equal(t, 2, runs)
}

func TestPanicBecomesFailedAttempt(t *testing.T) {
	s, _, obs := newTestScheduler()
	var failure error
	require.NoError(t, s.Register(TaskClass{
		Name:               "boom",
		Handler:            func(context.Context, *Task) error { panic("nil map") },
		OnPermanentFailure: func(_ context.Context, _ *Task, err error) { failure = err },
	}))
	_, err := s.Enqueue(context.Background(), "boom", struct{}{})
	require.NoError(t, err)

	_, err = s.RunDue(context.Background(), LaneDefault)
	require.NoError(t, err)
	require.Error(t, failure)
	assert.Contains(t, failure.Error(), "panic")
	assert.Equal(t, []Outcome{OutcomeFailed}, obs.outcomes)
}

func TestTimeoutIsAppliedPerAttempt(t *testing.T) {
	s, _, _ := newTestScheduler()
	var deadline time.Time
	require.NoError(t, s.Register(TaskClass{
		Name:    "upload",
		Timeout: time.Minute,
		Handler: func(ctx context.Context, _ *Task) error {
			deadline, _ = ctx.Deadline()
			return nil
		},
	}))
	_, err := s.Enqueue(context.Background(), "upload", struct{}{})
	require.NoError(t, err)
	_, _ = s.RunDue(context.Background(), LaneDefault)
	assert.False(t, deadline.IsZero())
}

func TestLanesAreIndependent(t *testing.T) {
	s, clock, _ := newTestScheduler()
	var low int
	require.NoError(t, s.Register(TaskClass{Name: "metrics", Lane: LaneLow, Delay: time.Hour, Handler: func(context.Context, *Task) error {
		low++
		return nil
	}}))
	_, err := s.Enqueue(context.Background(), "metrics", struct{}{})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	n, _ := s.RunDue(context.Background(), LaneDefault)
	assert.Zero(t, n)
	n, _ = s.RunDue(context.Background(), LaneLow)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, low)
}

func TestDecodeDropsBadPayload(t *testing.T) {
	task := &Task{ID: "t1", Class: "publish", Payload: []byte(`{"content_id":`)}
	var v map[string]any
	assert.True(t, IsDrop(task.Decode(&v)))
	assert.True(t, IsDrop((&Task{ID: "t2"}).Decode(&v)))
}

func TestRunProcessesQueuedWork(t *testing.T) {
	s := New(NewMemoryQueue(), Config{Workers: map[Lane]int{LaneDefault: 2}, PollInterval: 5 * time.Millisecond})
	done := make(chan string, 1)
	require.NoError(t, s.Register(TaskClass{Name: "ping", Handler: func(_ context.Context, task *Task) error {
		var msg string
		if err := task.Decode(&msg); err != nil {
			return err
		}
		done <- msg
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(stopped)
	}()

	_, err := s.Enqueue(ctx, "ping", "hello")
	require.NoError(t, err)

	select {
	case msg := <-done:
		assert.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not executed")
	}
	cancel()
	<-stopped
}
