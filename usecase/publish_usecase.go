package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"
	"content-distributor/infrastructure/scheduler"
)

// EventPublishStatus is the type of every PublishStatusEvent.
const EventPublishStatus = "publish_status"

// StatusSink receives the outcome of every publish attempt that reached a terminal status.
type StatusSink interface {
	Notify(ctx context.Context, evt dto.PublishStatusEvent) error
}

// StatusSinkFunc adapts a plain function to StatusSink.
type StatusSinkFunc func(ctx context.Context, evt dto.PublishStatusEvent) error

func (f StatusSinkFunc) Notify(ctx context.Context, evt dto.PublishStatusEvent) error { return f(ctx, evt) }

type PublishObserver interface {
	PublishFinished(platform, status string)
}

type IPublishUsecase interface {
	Handle(ctx context.Context, t *scheduler.Task) error
	TaskClass() scheduler.TaskClass
	ReportStuck(ctx context.Context) (int, error)
}

type PublishConfig struct {
	MaxAttempts int
	Backoff     []time.Duration
	// Timeouts bounds a single attempt per platform; Default covers the rest.
	Timeouts       map[string]time.Duration
	DefaultTimeout time.Duration
	StuckAfter     time.Duration
}

func (c PublishConfig) timeout(platform string) time.Duration {
	if d, ok := c.Timeouts[platform]; ok && d > 0 {
		return d
	}
	return c.DefaultTimeout
}

type publishUsecase struct {
	contents   repository.IContent
	accounts   repository.IAccount
	records    repository.IPublishRecord
	audits     repository.IPublishAudit
	publishers PublisherLookup
	metrics    IMetricsUsecase
	cfg        PublishConfig
	sinks      []StatusSink
	observer   PublishObserver
	now        func() time.Time
}

type PublishOption func(*publishUsecase)

func WithStatusSinks(sinks ...StatusSink) PublishOption {
	return func(u *publishUsecase) { u.sinks = append(u.sinks, sinks...) }
}

func WithPublishObserver(o PublishObserver) PublishOption {
	return func(u *publishUsecase) { u.observer = o }
}

func WithPublishClock(now func() time.Time) PublishOption {
	return func(u *publishUsecase) { u.now = now }
}

func NewPublishUsecase(
	contents repository.IContent,
	accounts repository.IAccount,
	records repository.IPublishRecord,
	audits repository.IPublishAudit,
	publishers PublisherLookup,
	metrics IMetricsUsecase,
	cfg PublishConfig,
	opts ...PublishOption,
) IPublishUsecase {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{time.Minute, 5 * time.Minute}
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 2 * time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = time.Hour
	}
	u := &publishUsecase{
		contents:   contents,
		accounts:   accounts,
		records:    records,
		audits:     audits,
		publishers: publishers,
		metrics:    metrics,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *publishUsecase) TaskClass() scheduler.TaskClass {
	longest := u.cfg.DefaultTimeout
	for _, d := range u.cfg.Timeouts {
		if d > longest {
			longest = d
		}
	}
	return scheduler.TaskClass{
		Name:        TaskPublish,
		MaxAttempts: u.cfg.MaxAttempts,
		Backoff:     u.cfg.Backoff,
		Lane:        scheduler.LaneDefault,
		Timeout:     longest,
		Handler:     u.Handle,
		OnPermanentFailure: func(_ context.Context, t *scheduler.Task, err error) {
			logger.GetLogger().WithFields(map[string]interface{}{
				"task_id":  t.ID,
				"attempts": t.Attempt,
				"error":    err,
			}).Error("publish gave up after retries")
		},
		OnDrop: func(_ context.Context, t *scheduler.Task, err error) {
			logger.GetLogger().WithField("task_id", t.ID).WithField("error", err).Warn("publish task dropped")
		},
	}
}

// Handle runs one publish attempt. The adapter owns the record lifecycle;
// Handle resolves inputs, records the audit trail and fans out the outcome.
func (u *publishUsecase) Handle(ctx context.Context, t *scheduler.Task) error {
	var p dto.PublishTask
	if err := t.Decode(&p); err != nil {
		return err
	}
	platform := model.NormalizePlatform(p.Platform)
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"task_id":    t.ID,
		"content_id": p.ContentID,
		"platform":   platform,
		"account_id": p.AccountID,
		"attempt":    t.Attempt,
	})

	pub, ok := u.publishers.Get(platform)
	if !ok {
		return scheduler.Drop(fmt.Errorf("no adapter for platform %q", p.Platform))
	}
	content, err := u.contents.GetByID(ctx, p.ContentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return scheduler.Drop(fmt.Errorf("content %s: %w", p.ContentID, err))
		}
		return fmt.Errorf("load content %s: %w", p.ContentID, err)
	}
	var acct *model.Account
	if p.AccountID != nil {
		// re-read so a refresh by another task is picked up
		acct, err = u.accounts.GetByID(ctx, *p.AccountID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return scheduler.Drop(fmt.Errorf("account %d: %w", *p.AccountID, err))
			}
			return fmt.Errorf("load account %d: %w", *p.AccountID, err)
		}
	}

	started := time.Now()
	pctx, cancel := context.WithTimeout(ctx, u.cfg.timeout(platform))
	rec, perr := pub.Publish(pctx, content, acct)
	cancel()

	if rec == nil {
		if perr != nil {
			log.WithField("error", perr).Warn("publish attempt failed before a record existed")
		}
		return perr
	}
	if perr == nil && !newlyPublished(rec, started) {
		log.WithField("record_id", rec.ID).Debug("record already published")
		return nil
	}

	u.finish(ctx, t, p, rec, perr)
	if perr != nil {
		return perr
	}
	if u.metrics != nil {
		if err := u.metrics.Schedule(ctx, rec); err != nil {
			log.WithField("error", err).Warn("could not schedule metrics refresh")
		}
	}
	return nil
}

// newlyPublished tells a publish made by this attempt from a record that was
// already published when the attempt began.
func newlyPublished(rec *model.PublishRecord, started time.Time) bool {
	return rec.Status == model.PublishStatusPublished && rec.PublishedAt != nil && !rec.PublishedAt.Before(started)
}

// finish writes the audit row and notifies every sink. Failures here are logged only.
func (u *publishUsecase) finish(ctx context.Context, t *scheduler.Task, p dto.PublishTask, rec *model.PublishRecord, cause error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	log := logger.GetLogger().WithField("record_id", rec.ID).WithField("status", rec.Status)

	errMsg := rec.ErrorMessage
	if errMsg == nil && cause != nil {
		m := cause.Error()
		errMsg = &m
	}
	if u.audits != nil {
		if err := u.audits.Append(wctx, &model.PublishAudit{
			RecordID:     rec.ID,
			ContentID:    rec.ContentID,
			Platform:     rec.Platform,
			AccountID:    rec.AccountID,
			Status:       string(rec.Status),
			ErrorMessage: errMsg,
			Attempt:      t.Attempt,
		}); err != nil {
			log.WithField("error", err).Warn("append publish audit failed")
		}
	}

	evt := dto.PublishStatusEvent{
		Type:           EventPublishStatus,
		RecordID:       rec.ID,
		ContentID:      rec.ContentID,
		Platform:       rec.Platform,
		AccountID:      rec.AccountID,
		Status:         string(rec.Status),
		PlatformPostID: rec.PlatformPostID,
		PublicURL:      rec.PublicURL,
		Error:          errMsg,
		OwnerID:        p.OwnerID,
	}
	for _, s := range u.sinks {
		if err := s.Notify(wctx, evt); err != nil {
			log.WithField("error", err).Warn("status notification failed")
		}
	}
	if u.observer != nil {
		u.observer.PublishFinished(rec.Platform, string(rec.Status))
	}
}

// ReportStuck logs records that have stayed in processing longer than StuckAfter.
// Nothing is transitioned automatically.
func (u *publishUsecase) ReportStuck(ctx context.Context) (int, error) {
	stuck, err := u.records.ListStuck(ctx, u.now().Add(-u.cfg.StuckAfter), 100)
	if err != nil {
		return 0, err
	}
	for _, rec := range stuck {
		logger.GetLogger().WithFields(map[string]interface{}{
			"record_id":  rec.ID,
			"platform":   rec.Platform,
			"content_id": rec.ContentID,
			"updated_at": rec.UpdatedAt,
		}).Warn("publish record stuck in processing")
	}
	return len(stuck), nil
}
