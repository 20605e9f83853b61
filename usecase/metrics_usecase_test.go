package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"
	"content-distributor/infrastructure/scheduler"
	"content-distributor/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func refreshTask(t *testing.T, id int64) *scheduler.Task {
	t.Helper()
	body, err := json.Marshal(dto.MetricsRefreshTask{RecordID: id})
	require.NoError(t, err)
	return &scheduler.Task{ID: "m", Class: usecase.TaskMetricsRefresh, Payload: body, Attempt: 1}
}

func newMetricsFixture(pub *scriptedPublisher, now time.Time) (usecase.IMetricsUsecase, *memoryRecords, *MockEnqueuer, finishedCounter) {
	records := newMemoryRecords()
	pub.records = records
	enq := &MockEnqueuer{}
	obs := finishedCounter{}
	accounts := newMemoryAccounts(userAccount(5, model.PlatformReddit, "u-1"))
	uc := usecase.NewMetricsUsecase(records, accounts, lookup{model.PlatformReddit: pub}, enq,
		usecase.MetricsConfig{Cooldown: time.Hour, Window: 24 * time.Hour},
		usecase.WithMetricsClock(func() time.Time { return now }), usecase.WithMetricsObserver(obs))
	return uc, records, enq, obs
}

func publishedRecord(id int64, publishedAt time.Time, refreshed *time.Time) model.PublishRecord {
	acct := int64(5)
	return model.PublishRecord{
		ID: id, Platform: model.PlatformReddit, ContentID: "c-1", AccountID: &acct,
		Status: model.PublishStatusPublished, PlatformPostID: strptr("t3_abc"),
		PublishedAt: &publishedAt, MetricsUpdatedAt: refreshed, Views: 1,
	}
}

func TestMetricsHandleOverwritesCounters(t *testing.T) {
	now := time.Now()
	pub := &scriptedPublisher{platform: model.PlatformReddit, metrics: model.EngagementMetrics{Views: 10, Likes: 4, Comments: 2}}
	uc, records, _, obs := newMetricsFixture(pub, now)
	records.put(publishedRecord(1, now.Add(-time.Hour), nil))

	require.NoError(t, uc.Handle(context.Background(), refreshTask(t, 1)))

	rec, _ := records.GetByID(context.Background(), 1)
	assert.EqualValues(t, 10, rec.Views)
	assert.EqualValues(t, 4, rec.Likes)
	assert.EqualValues(t, 2, rec.Comments)
	assert.Equal(t, model.PublishStatusPublished, rec.Status)
	assert.Equal(t, 1, obs["reddit:ok"])
}

func TestMetricsHandleSwallowsFailures(t *testing.T) {
	now := time.Now()
	pub := &scriptedPublisher{platform: model.PlatformReddit, mErr: errors.New("rate limited")}
	uc, records, _, obs := newMetricsFixture(pub, now)
	records.put(publishedRecord(1, now.Add(-time.Hour), nil))
	failed := publishedRecord(2, now, nil)
	failed.Status = model.PublishStatusFailed
	records.put(failed)

	assert.NoError(t, uc.Handle(context.Background(), refreshTask(t, 1)))
	assert.NoError(t, uc.Handle(context.Background(), refreshTask(t, 2)))
	assert.NoError(t, uc.Handle(context.Background(), refreshTask(t, 99)))

	rec, _ := records.GetByID(context.Background(), 1)
	assert.EqualValues(t, 1, rec.Views, "counters untouched on failure")
	assert.Equal(t, model.PublishStatusPublished, rec.Status)
	assert.Equal(t, 1, obs["reddit:error"])
}

func TestMetricsSweep(t *testing.T) {
	now := time.Now()
	pub := &scriptedPublisher{platform: model.PlatformReddit}
	uc, records, enq, _ := newMetricsFixture(pub, now)
	stale, fresh := now.Add(-2*time.Hour), now.Add(-10*time.Minute)
	records.put(publishedRecord(1, now.Add(-3*time.Hour), nil))
	records.put(publishedRecord(2, now.Add(-3*time.Hour), &stale))
	records.put(publishedRecord(3, now.Add(-3*time.Hour), &fresh))
	records.put(publishedRecord(4, now.Add(-48*time.Hour), nil))

	enq.On("Enqueue", mock.Anything, usecase.TaskMetricsRefresh, dto.MetricsRefreshTask{RecordID: 1}).Return("a", nil).Once()
	enq.On("Enqueue", mock.Anything, usecase.TaskMetricsRefresh, dto.MetricsRefreshTask{RecordID: 2}).Return("", errors.New("queue full")).Once()

	n, err := uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	enq.AssertExpectations(t)
}

func TestMetricsTaskClassIsSingleAttemptLowLane(t *testing.T) {
	uc, _, _, _ := newMetricsFixture(&scriptedPublisher{platform: model.PlatformReddit}, time.Now())
	class := uc.TaskClass()
	assert.Equal(t, 1, class.MaxAttempts)
	assert.Equal(t, scheduler.LaneLow, class.Lane)
	assert.Equal(t, time.Hour, class.Delay)
}
