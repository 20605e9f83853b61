package usecase

import (
	"context"
	"errors"
	"time"

	"content-distributor/domain/dto"
	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"
	"content-distributor/infrastructure/scheduler"

	"github.com/sirupsen/logrus"
)

const sweepBatch = 50

type MetricsObserver interface {
	MetricsRefreshed(platform string, ok bool)
}

type IMetricsUsecase interface {
	Schedule(ctx context.Context, rec *model.PublishRecord) error
	Handle(ctx context.Context, t *scheduler.Task) error
	Sweep(ctx context.Context) (int, error)
	TaskClass() scheduler.TaskClass
}

type MetricsConfig struct {
	Cooldown time.Duration
	// Window bounds how far back Sweep looks for published records.
	Window  time.Duration
	Timeout time.Duration
}

type metricsUsecase struct {
	records    repository.IPublishRecord
	accounts   repository.IAccount
	publishers PublisherLookup
	tasks      Enqueuer
	cfg        MetricsConfig
	now        func() time.Time
	observer   MetricsObserver
}

type MetricsOption func(*metricsUsecase)

func WithMetricsClock(now func() time.Time) MetricsOption {
	return func(u *metricsUsecase) { u.now = now }
}

func WithMetricsObserver(o MetricsObserver) MetricsOption {
	return func(u *metricsUsecase) { u.observer = o }
}

func NewMetricsUsecase(records repository.IPublishRecord, accounts repository.IAccount, publishers PublisherLookup, tasks Enqueuer, cfg MetricsConfig, opts ...MetricsOption) IMetricsUsecase {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	u := &metricsUsecase{records: records, accounts: accounts, publishers: publishers, tasks: tasks, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// TaskClass runs refreshes on the low lane with a single attempt: a failed
// refresh waits for the next sweep instead of retrying.
func (u *metricsUsecase) TaskClass() scheduler.TaskClass {
	return scheduler.TaskClass{
		Name:        TaskMetricsRefresh,
		MaxAttempts: 1,
		Delay:       u.cfg.Cooldown,
		Lane:        scheduler.LaneLow,
		Timeout:     u.cfg.Timeout,
		Handler:     u.Handle,
	}
}

// Schedule enqueues a refresh of rec after the cool-down.
func (u *metricsUsecase) Schedule(ctx context.Context, rec *model.PublishRecord) error {
	_, err := u.tasks.Enqueue(ctx, TaskMetricsRefresh, dto.MetricsRefreshTask{RecordID: rec.ID}, scheduler.WithDelay(u.cfg.Cooldown))
	return err
}

// Handle refreshes the counters of one record. Every failure is logged and
// swallowed; the record status is never touched.
func (u *metricsUsecase) Handle(ctx context.Context, t *scheduler.Task) error {
	var p dto.MetricsRefreshTask
	if err := t.Decode(&p); err != nil {
		return err
	}
	log := logger.GetLogger().WithField("record_id", p.RecordID)

	rec, err := u.records.GetByID(ctx, p.RecordID)
	if err != nil {
		log.WithField("error", err).Warn("metrics refresh: record unavailable")
		return nil
	}
	if rec.Status != model.PublishStatusPublished || rec.PlatformPostID == nil || *rec.PlatformPostID == "" {
		log.WithField("status", rec.Status).Debug("metrics refresh: record not published")
		return nil
	}
	log = log.WithField("platform", rec.Platform)

	pub, ok := u.publishers.Get(rec.Platform)
	if !ok {
		log.Warn("metrics refresh: no adapter for platform")
		return nil
	}
	var acct *model.Account
	if rec.AccountID != nil {
		if acct, err = u.accounts.GetByID(ctx, *rec.AccountID); err != nil {
			u.fail(log, rec, &errs.MetricsFetchError{Platform: rec.Platform, PostID: *rec.PlatformPostID, Err: err})
			return nil
		}
	}

	m, err := pub.GetMetrics(ctx, *rec.PlatformPostID, acct)
	if err != nil {
		var mfe *errs.MetricsFetchError
		if !errors.As(err, &mfe) {
			err = &errs.MetricsFetchError{Platform: rec.Platform, PostID: *rec.PlatformPostID, Err: err}
		}
		u.fail(log, rec, err)
		return nil
	}
	if err := u.records.UpdateMetrics(ctx, rec.ID, m); err != nil {
		u.fail(log, rec, err)
		return nil
	}
	log.WithFields(map[string]interface{}{"views": m.Views, "likes": m.Likes, "comments": m.Comments}).Info("metrics refreshed")
	u.report(rec.Platform, true)
	return nil
}

func (u *metricsUsecase) fail(log *logrus.Entry, rec *model.PublishRecord, err error) {
	log.WithField("error", err).Warn("metrics refresh failed")
	u.report(rec.Platform, false)
}

func (u *metricsUsecase) report(platform string, ok bool) {
	if u.observer != nil {
		u.observer.MetricsRefreshed(platform, ok)
	}
}

// Sweep schedules an immediate refresh for published records inside the window
// whose counters are older than the cool-down.
func (u *metricsUsecase) Sweep(ctx context.Context) (int, error) {
	now := u.now()
	due, err := u.records.ListMetricsDue(ctx, now.Add(-u.cfg.Window), now.Add(-u.cfg.Cooldown), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range due {
		if _, err := u.tasks.Enqueue(ctx, TaskMetricsRefresh, dto.MetricsRefreshTask{RecordID: rec.ID}, scheduler.WithDelay(0)); err != nil {
			logger.GetLogger().WithField("record_id", rec.ID).WithField("error", err).Error("metrics sweep: enqueue failed")
			continue
		}
		n++
	}
	logger.GetLogger().WithField("scheduled", n).Info("metrics sweep finished")
	return n, nil
}
