package repository

import (
	"context"
	"time"

	"content-distributor/domain/model"
)

type IPublishRecord interface {
	// Begin moves the (content, platform, account) record into processing, creating it when absent.
	// A record that already reached published is returned untouched with alreadyPublished=true.
	Begin(ctx context.Context, platform, contentID string, accountID *int64) (rec *model.PublishRecord, alreadyPublished bool, err error)
	MarkPublished(ctx context.Context, rec *model.PublishRecord) error
	MarkFailed(ctx context.Context, id int64, message string) error
	MarkSkipped(ctx context.Context, id int64, message string) error
	// UpdateMetrics overwrites the engagement counters. Status is never touched.
	UpdateMetrics(ctx context.Context, id int64, m model.EngagementMetrics) error
	GetByID(ctx context.Context, id int64) (*model.PublishRecord, error)
	ListByContent(ctx context.Context, contentID string) ([]*model.PublishRecord, error)
	ListMetricsDue(ctx context.Context, publishedSince, staleBefore time.Time, limit uint64) ([]*model.PublishRecord, error)
	ListStuck(ctx context.Context, olderThan time.Time, limit uint64) ([]*model.PublishRecord, error)
}

type IPublishAudit interface {
	Append(ctx context.Context, audit *model.PublishAudit) error
	ListByContent(ctx context.Context, contentID string) ([]model.PublishAudit, error)
}
