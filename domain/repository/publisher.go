package repository

import (
	"context"

	"content-distributor/domain/model"
)

// IPublisher is the capability surface every platform adapter exposes.
// account is nil for bot-based platforms.
type IPublisher interface {
	Platform() string
	Publish(ctx context.Context, content *model.ContentItem, account *model.Account) (*model.PublishRecord, error)
	GetMetrics(ctx context.Context, platformPostID string, account *model.Account) (model.EngagementMetrics, error)
}
