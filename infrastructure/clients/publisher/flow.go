package publisher

import (
	"context"
	"fmt"
	"time"

	"content-distributor/domain/errs"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"
)

const maxStoredError = 1000

// TokenSource yields a usable access token for an account.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, acct *model.Account) (string, error)
}

type postResult struct {
	PostID    string
	PublicURL string
	Metadata  map[string]string
}

// flow is the record lifecycle shared by every adapter.
type flow struct {
	platform string
	records  repository.IPublishRecord
	now      func() time.Time
}

func newFlow(platform string, records repository.IPublishRecord) flow {
	return flow{platform: platform, records: records, now: func() time.Time { return time.Now().UTC() }}
}

func (f flow) run(
	ctx context.Context,
	content *model.ContentItem,
	acct *model.Account,
	authorize func(ctx context.Context) (string, error),
	publish func(ctx context.Context, token string) (*postResult, error),
) (*model.PublishRecord, error) {
	if content == nil {
		return nil, fmt.Errorf("%s: nil content", f.platform)
	}
	var accountID *int64
	if acct != nil {
		id := acct.ID
		accountID = &id
	}
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"platform":   f.platform,
		"content_id": content.ID,
		"account_id": accountID,
	})

	rec, alreadyPublished, err := f.records.Begin(ctx, f.platform, content.ID, accountID)
	if err != nil {
		return nil, fmt.Errorf("begin %s record for content %s: %w", f.platform, content.ID, err)
	}
	if alreadyPublished {
		log.WithField("record_id", rec.ID).Info("already published; skipping")
		return rec, nil
	}

	token, err := authorize(ctx)
	if err != nil {
		return rec, f.fail(ctx, rec, err)
	}
	res, err := publish(ctx, token)
	if err != nil {
		return rec, f.fail(ctx, rec, scrub(err, token))
	}

	now := f.now()
	rec.Status = model.PublishStatusPublished
	rec.PlatformPostID = &res.PostID
	if res.PublicURL != "" {
		u := res.PublicURL
		rec.PublicURL = &u
	}
	rec.ErrorMessage = nil
	rec.PublishedAt = &now
	if len(res.Metadata) > 0 {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string, len(res.Metadata))
		}
		for k, v := range res.Metadata {
			rec.Metadata[k] = v
		}
	}
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := f.records.MarkPublished(wctx, rec); err != nil {
		return rec, fmt.Errorf("mark record %d published: %w", rec.ID, err)
	}
	log.WithField("record_id", rec.ID).WithField("post_id", res.PostID).Info("published")
	return rec, nil
}

// fail writes the terminal status for cause and returns cause.
func (f flow) fail(ctx context.Context, rec *model.PublishRecord, cause error) error {
	msg := clip(cause.Error(), maxStoredError)
	wctx, cancel := detached(ctx)
	defer cancel()
	var werr error
	if errs.IsNonRetryable(cause) {
		rec.Status = model.PublishStatusSkippedExpiredCredentials
		werr = f.records.MarkSkipped(wctx, rec.ID, msg)
	} else {
		rec.Status = model.PublishStatusFailed
		werr = f.records.MarkFailed(wctx, rec.ID, msg)
	}
	rec.ErrorMessage = &msg
	if werr != nil {
		logger.GetLogger().WithField("record_id", rec.ID).WithField("error", werr).Error("could not store publish failure")
	}
	return cause
}

// detached keeps status writes alive after the attempt's deadline fired.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func wrapMetricsErr(platform, postID string, err error) error {
	if err == nil {
		return nil
	}
	return &errs.MetricsFetchError{Platform: platform, PostID: postID, Err: err}
}
